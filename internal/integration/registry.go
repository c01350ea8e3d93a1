package integration

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/integration/discord"
	"github.com/tombee/switchboard/internal/integration/dropbox"
	"github.com/tombee/switchboard/internal/integration/github"
	"github.com/tombee/switchboard/internal/integration/jira"
	"github.com/tombee/switchboard/internal/integration/notion"
	"github.com/tombee/switchboard/internal/integration/openai"
	"github.com/tombee/switchboard/internal/integration/sendgrid"
	"github.com/tombee/switchboard/internal/integration/slack"
	"github.com/tombee/switchboard/internal/integration/stripe"
	"github.com/tombee/switchboard/internal/integration/twilio"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// Factory constructs an adapter.
type Factory func(cfg api.Config) (api.Adapter, error)

// BuiltinRegistry holds the factories of all built-in integrations.
var BuiltinRegistry = map[string]Factory{
	"slack":    slack.NewSlackIntegration,
	"github":   github.NewGitHubIntegration,
	"notion":   notion.NewNotionIntegration,
	"discord":  discord.NewDiscordIntegration,
	"jira":     jira.NewJiraIntegration,
	"twilio":   twilio.NewTwilioIntegration,
	"stripe":   stripe.NewStripeIntegration,
	"sendgrid": sendgrid.NewSendGridIntegration,
	"openai":   openai.NewOpenAIIntegration,
	"dropbox":  dropbox.NewDropboxIntegration,
}

// Registry maps integration ids to adapters. Registration is append-only;
// lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]api.Adapter
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]api.Adapter)}
}

// Override replaces parts of the shared adapter config for one integration.
type Override struct {
	BaseURL   string
	Transport transport.Transport
}

// NewBuiltin creates a registry holding every built-in integration, in id
// order. overrides is keyed by integration id.
func NewBuiltin(cfg api.Config, overrides map[string]Override) (*Registry, error) {
	ids := make([]string, 0, len(BuiltinRegistry))
	for id := range BuiltinRegistry {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r := NewRegistry()
	for _, id := range ids {
		c := cfg
		o := overrides[id]
		c.BaseURL = o.BaseURL
		if o.Transport != nil {
			c.Transport = o.Transport
		}
		adapter, err := BuiltinRegistry[id](c)
		if err != nil {
			return nil, fmt.Errorf("create %s integration: %w", id, err)
		}
		if err := r.Register(adapter); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Registering an id twice is an error.
func (r *Registry) Register(adapter api.Adapter) error {
	id := adapter.Definition().ID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return &sberrors.ConfigError{Key: "integrations." + id, Reason: "integration already registered"}
	}
	r.adapters[id] = adapter
	r.order = append(r.order, id)
	return nil
}

// Get returns the adapter for id, or nil.
func (r *Registry) Get(id string) api.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// GetAll returns every adapter in registration order.
func (r *Registry) GetAll() []api.Adapter {
	return r.filter(func(*schema.IntegrationDefinition) bool { return true })
}

// GetAllDefinitions returns every definition in registration order.
func (r *Registry) GetAllDefinitions() []*schema.IntegrationDefinition {
	adapters := r.GetAll()
	defs := make([]*schema.IntegrationDefinition, len(adapters))
	for i, a := range adapters {
		defs[i] = a.Definition()
	}
	return defs
}

// GetByCategory returns the adapters in category.
func (r *Registry) GetByCategory(category schema.Category) []api.Adapter {
	return r.filter(func(d *schema.IntegrationDefinition) bool { return d.Category == category })
}

// Search returns adapters whose name or description contains query,
// ignoring case.
func (r *Registry) Search(query string) []api.Adapter {
	return r.filter(func(d *schema.IntegrationDefinition) bool { return d.Matches(query) })
}

func (r *Registry) filter(keep func(*schema.IntegrationDefinition) bool) []api.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.Adapter, 0, len(r.order))
	for _, id := range r.order {
		if a := r.adapters[id]; keep(a.Definition()) {
			out = append(out, a)
		}
	}
	return out
}
