package observability

import (
	"time"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/translate"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

// Recorder feeds vault and translation events into the package metrics.
type Recorder struct{}

var (
	_ vault.Observer     = Recorder{}
	_ translate.Observer = Recorder{}
)

// KeyDerived implements vault.Observer.
func (Recorder) KeyDerived() {
	VaultKeyDerivationsTotal.Inc()
}

// CacheLookup implements vault.Observer.
func (Recorder) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	VaultCacheLookupsTotal.WithLabelValues(result).Inc()
}

// DecryptFailed implements vault.Observer.
func (Recorder) DecryptFailed(kind api.Kind) {
	VaultDecryptFailuresTotal.WithLabelValues(string(kind)).Inc()
}

// AttemptDone implements translate.Observer.
func (Recorder) AttemptDone(kind provider.Kind, streaming bool, elapsed time.Duration, err error) {
	mode := "complete"
	if streaming {
		mode = "stream"
	}
	status := "ok"
	if err != nil {
		status = string(api.KindOf(err))
		if status == "" {
			status = "error"
		}
	}
	ProviderRequestsTotal.WithLabelValues(string(kind), mode, status).Inc()
	ProviderLatency.WithLabelValues(string(kind), mode).Observe(elapsed.Seconds())
}

// ProtocolFallback implements translate.Observer.
func (Recorder) ProtocolFallback(from, to provider.Kind) {
	ProtocolFallbacksTotal.WithLabelValues(string(from), string(to)).Inc()
}

// StreamFallback implements translate.Observer.
func (Recorder) StreamFallback(kind provider.Kind) {
	StreamFallbacksTotal.WithLabelValues(string(kind)).Inc()
}

// Usage implements translate.Observer.
func (Recorder) Usage(kind provider.Kind, u provider.Usage) {
	ProviderTokensTotal.WithLabelValues(string(kind), "input").Add(float64(u.InputTokens))
	ProviderTokensTotal.WithLabelValues(string(kind), "output").Add(float64(u.OutputTokens))
}
