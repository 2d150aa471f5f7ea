package translate

import (
	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/provider/chat"
	"github.com/rhuss/dolmetsch/pkg/provider/claude"
	"github.com/rhuss/dolmetsch/pkg/provider/responses"
)

// AdapterFor returns the adapter for kind.
func AdapterFor(kind provider.Kind) (provider.Adapter, error) {
	switch kind {
	case provider.KindResponses:
		return responses.New(), nil
	case provider.KindChat:
		return chat.New(), nil
	case provider.KindClaude:
		return claude.New(), nil
	}
	return nil, api.NewNotImplementedError("unknown provider kind " + string(kind))
}
