package translate

import (
	"time"

	"github.com/rhuss/dolmetsch/pkg/provider"
)

// Observer receives request telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	// AttemptDone is called once per HTTP attempt. err is nil on success.
	AttemptDone(kind provider.Kind, streaming bool, elapsed time.Duration, err error)

	// ProtocolFallback is called when a request is repeated with the
	// fallback protocol.
	ProtocolFallback(from, to provider.Kind)

	// StreamFallback is called when streaming is abandoned for a single
	// non-streaming call.
	StreamFallback(kind provider.Kind)

	// Usage reports provider token accounting.
	Usage(kind provider.Kind, u provider.Usage)
}

type nopObserver struct{}

func (nopObserver) AttemptDone(provider.Kind, bool, time.Duration, error) {}
func (nopObserver) ProtocolFallback(provider.Kind, provider.Kind)         {}
func (nopObserver) StreamFallback(provider.Kind)                          {}
func (nopObserver) Usage(provider.Kind, provider.Usage)                   {}
