package oauth

import "errors"

var (
	// ErrUnknownProvider indicates the provider name is not configured
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrStateInvalid indicates missing, expired or replayed CSRF state.
	// State is attacker-controlled input, so this is a normal rejection.
	ErrStateInvalid = errors.New("oauth state invalid")
	// ErrProviderFailure indicates the upstream identity provider failed
	// or timed out
	ErrProviderFailure = errors.New("oauth provider failure")
	// ErrIncompleteProfile indicates the provider response lacked the id
	// or email needed to resolve an account
	ErrIncompleteProfile = errors.New("oauth profile incomplete")
)

// ProviderType selects the protocol an entry in the providers file speaks
type ProviderType string

const (
	ProviderTypeOIDC   ProviderType = "oidc"
	ProviderTypeOAuth2 ProviderType = "oauth2"
)

// ProviderConfig is one entry in the providers YAML file
type ProviderConfig struct {
	Name         string       `yaml:"name"`
	Type         ProviderType `yaml:"type"`
	ClientID     string       `yaml:"client_id"`
	ClientSecret string       `yaml:"client_secret"`
	RedirectURL  string       `yaml:"redirect_url"`
	Scopes       []string     `yaml:"scopes"`

	// OIDC
	IssuerURL string `yaml:"issuer_url,omitempty"`

	// Generic OAuth2
	AuthURL     string       `yaml:"auth_url,omitempty"`
	TokenURL    string       `yaml:"token_url,omitempty"`
	UserInfoURL string       `yaml:"user_info_url,omitempty"`
	Mapping     AttributeMap `yaml:"mapping,omitempty"`
}

// AttributeMap names the userinfo fields holding each profile attribute
type AttributeMap struct {
	ID      string `yaml:"id"`
	Email   string `yaml:"email"`
	Name    string `yaml:"name"`
	Picture string `yaml:"picture,omitempty"`
}

// UserInfo is the provider-independent profile shape
type UserInfo struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Picture    string `json:"picture,omitempty"`
}

// Validate checks the profile carries what account resolution needs
func (u *UserInfo) Validate() error {
	if u.ProviderID == "" || u.Email == "" {
		return ErrIncompleteProfile
	}
	return nil
}
