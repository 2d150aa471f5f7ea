package settings

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/prompt"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

// Persisted keys and the current document version.
const (
	Key       = "AI_TR_CFG"
	legacyKey = "AI_TR_CFG_V1"
	Version   = 2
)

// Defaults of a fresh document.
const (
	DefaultServiceID      = "svc-1"
	DefaultServiceName    = "Default service"
	DefaultPromptID       = "p-1"
	DefaultPromptName     = "Default prompt"
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-4o-mini"
	DefaultTargetLanguage = "zh-CN"
	DefaultTimeoutMs      = 30000
	DefaultRetries        = 2
)

// Profile is one configured provider service.
type Profile struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Kind        provider.Kind `json:"apiType"`
	BaseURL     string        `json:"baseUrl"`
	APIKeyEnc   string        `json:"apiKeyEnc"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   *int          `json:"maxTokens,omitempty"`
}

// ProviderProfile returns the subset of p a provider adapter needs.
func (p Profile) ProviderProfile() provider.Profile {
	pp := provider.Profile{Model: p.Model, Temperature: p.Temperature}
	if p.MaxTokens != nil {
		pp.MaxTokens = *p.MaxTokens
	}
	return pp
}

// Prompt is a named prompt template.
type Prompt struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Template string `json:"template"`
}

// Document is the persisted settings document.
type Document struct {
	Version           int     `json:"version"`
	MasterPasswordEnc string  `json:"masterPasswordEnc"`
	TargetLanguage    string  `json:"targetLanguage"`
	Stream            bool    `json:"stream"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         *int    `json:"maxTokens,omitempty"`
	TimeoutMs         int     `json:"timeoutMs"`
	Retries           int     `json:"retries"`
	StoreResponses    bool    `json:"storeResponses"`

	Services        []Profile `json:"services"`
	ActiveServiceID string    `json:"activeServiceId"`

	Prompts        []Prompt `json:"prompts"`
	ActivePromptID string   `json:"activePromptId"`
}

// Defaults returns a fresh document.
func Defaults() *Document {
	return &Document{
		Version:         Version,
		TargetLanguage:  DefaultTargetLanguage,
		Stream:          true,
		TimeoutMs:       DefaultTimeoutMs,
		Retries:         DefaultRetries,
		Services:        []Profile{defaultService()},
		ActiveServiceID: DefaultServiceID,
		Prompts:         []Prompt{defaultPrompt()},
		ActivePromptID:  DefaultPromptID,
	}
}

func defaultService() Profile {
	return Profile{
		ID:      DefaultServiceID,
		Name:    DefaultServiceName,
		Kind:    provider.KindResponses,
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
	}
}

func defaultPrompt() Prompt {
	return Prompt{ID: DefaultPromptID, Name: DefaultPromptName, Template: prompt.DefaultTemplate}
}

// Normalize fills in missing ids, names and defaults.
func (d *Document) Normalize() {
	d.Version = Version
	if d.TargetLanguage == "" {
		d.TargetLanguage = DefaultTargetLanguage
	}
	if d.TimeoutMs <= 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.Retries < 0 {
		d.Retries = 0
	}

	if len(d.Services) == 0 {
		d.Services = []Profile{defaultService()}
	}
	for i := range d.Services {
		s := &d.Services[i]
		if s.ID == "" {
			s.ID = fmt.Sprintf("svc-%d", i+1)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("Service %d", i+1)
		}
		if s.Kind == "" {
			s.Kind = provider.KindResponses
		}
		if s.BaseURL == "" {
			s.BaseURL = DefaultBaseURL
		}
		if s.Model == "" {
			s.Model = DefaultModel
		}
	}
	if d.ActiveServiceID == "" {
		d.ActiveServiceID = d.Services[0].ID
	}

	if len(d.Prompts) == 0 {
		d.Prompts = []Prompt{defaultPrompt()}
	}
	for i := range d.Prompts {
		p := &d.Prompts[i]
		if p.ID == "" {
			p.ID = fmt.Sprintf("p-%d", i+1)
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("Prompt %d", i+1)
		}
		if p.Template == "" {
			p.Template = prompt.DefaultTemplate
		}
	}
	if d.ActivePromptID == "" {
		d.ActivePromptID = d.Prompts[0].ID
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := *d
	c.Services = slices.Clone(d.Services)
	for i, s := range c.Services {
		if s.MaxTokens != nil {
			n := *s.MaxTokens
			c.Services[i].MaxTokens = &n
		}
	}
	c.Prompts = slices.Clone(d.Prompts)
	if d.MaxTokens != nil {
		n := *d.MaxTokens
		c.MaxTokens = &n
	}
	return &c
}

// Service returns the profile with the given id.
func (d *Document) Service(id string) (Profile, bool) {
	i := d.serviceIndex(id)
	if i < 0 {
		return Profile{}, false
	}
	return d.Services[i], true
}

func (d *Document) serviceIndex(id string) int {
	return slices.IndexFunc(d.Services, func(s Profile) bool { return s.ID == id })
}

// ActiveService returns the active profile, falling back to the first one
// and then to the built-in default.
func (d *Document) ActiveService() Profile {
	if s, ok := d.Service(d.ActiveServiceID); ok {
		return s
	}
	if len(d.Services) > 0 {
		return d.Services[0]
	}
	return defaultService()
}

// ActivePrompt returns the active prompt with the same fallback rules as
// ActiveService.
func (d *Document) ActivePrompt() Prompt {
	if i := slices.IndexFunc(d.Prompts, func(p Prompt) bool { return p.ID == d.ActivePromptID }); i >= 0 {
		return d.Prompts[i]
	}
	if len(d.Prompts) > 0 {
		return d.Prompts[0]
	}
	return defaultPrompt()
}

// UpsertService replaces the profile with p.ID or appends p. A new profile
// without id gets the next free svc-N id, which is returned.
func (d *Document) UpsertService(p Profile) string {
	if p.ID == "" {
		for n := len(d.Services) + 1; ; n++ {
			id := fmt.Sprintf("svc-%d", n)
			if d.serviceIndex(id) < 0 {
				p.ID = id
				break
			}
		}
	}
	if i := d.serviceIndex(p.ID); i >= 0 {
		d.Services[i] = p
	} else {
		d.Services = append(d.Services, p)
	}
	return p.ID
}

// RemoveService deletes a profile. The last profile cannot be removed.
// Removing the active profile activates the first remaining one.
func (d *Document) RemoveService(id string) error {
	i := d.serviceIndex(id)
	if i < 0 {
		return api.NewConfigurationError(api.CodeMissingSetting, "unknown service "+id)
	}
	if len(d.Services) == 1 {
		return api.NewConfigurationError(api.CodeMissingSetting, "cannot remove the only service")
	}
	d.Services = slices.Delete(d.Services, i, i+1)
	if d.ActiveServiceID == id {
		d.ActiveServiceID = d.Services[0].ID
	}
	return nil
}

// Validate checks that the active profile can be used for a request.
func (d *Document) Validate() error {
	s := d.ActiveService()
	var errs []error
	if s.BaseURL == "" {
		errs = append(errs, api.NewConfigurationError(api.CodeMissingSetting, "base URL must not be empty"))
	} else if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, api.NewConfigurationError(api.CodeMissingSetting, "base URL "+s.BaseURL+" is not an absolute URL"))
	}
	if s.Model == "" {
		errs = append(errs, api.NewConfigurationError(api.CodeMissingSetting, "model must not be empty"))
	}
	if s.APIKeyEnc == "" {
		errs = append(errs, api.NewConfigurationError(api.CodeMissingAPIKey, "API key is not set"))
	}
	return errors.Join(errs...)
}
