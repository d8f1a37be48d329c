package oauth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// Provider abstracts one configured identity provider
type Provider interface {
	// Name returns the provider's configured name
	Name() string

	// AuthCodeURL builds the provider redirect carrying the CSRF state
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a provider token
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchUserInfo loads the normalized profile for a provider token
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}

// Registry holds the configured providers by name
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from already constructed providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// Names lists the configured provider names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// providersFile is the YAML document shape
type providersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadRegistry reads the providers YAML file and constructs each entry.
// OIDC providers perform issuer discovery, so this needs network access
// and runs once at startup.
func LoadRegistry(ctx context.Context, path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	registry := &Registry{providers: make(map[string]Provider, len(file.Providers))}
	for _, cfg := range file.Providers {
		provider, err := buildProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
		}
		registry.providers[provider.Name()] = provider
	}
	return registry, nil
}

func buildProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client_id and client_secret are required")
	}

	switch cfg.Type {
	case ProviderTypeOIDC:
		return NewOIDCProvider(ctx, cfg)
	case ProviderTypeOAuth2:
		return NewOAuth2Provider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
	}
}
