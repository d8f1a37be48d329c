package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Provider implements Provider for plain OAuth2 providers such as
// GitHub, where the profile comes from a userinfo endpoint instead of an
// ID token
type OAuth2Provider struct {
	name         string
	userInfoURL  string
	mapping      AttributeMap
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider builds a provider from explicit endpoint URLs
func NewOAuth2Provider(cfg ProviderConfig) (*OAuth2Provider, error) {
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("auth_url and token_url are required for oauth2 providers")
	}
	if cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("user_info_url is required for oauth2 providers")
	}

	mapping := cfg.Mapping
	if mapping.ID == "" {
		mapping.ID = "id"
	}
	if mapping.Email == "" {
		mapping.Email = "email"
	}
	if mapping.Name == "" {
		mapping.Name = "name"
	}

	return &OAuth2Provider{
		name:        cfg.Name,
		userInfoURL: cfg.UserInfoURL,
		mapping:     mapping,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
	}, nil
}

// Name returns the provider's configured name
func (p *OAuth2Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the provider redirect carrying the CSRF state
func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a provider token
func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth2Config.Exchange(ctx, code)
}

// FetchUserInfo calls the userinfo endpoint and maps the configured
// attribute names onto the normalized profile
func (p *OAuth2Provider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := p.oauth2Config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var attrs map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}

	info := &UserInfo{
		Provider:   p.name,
		ProviderID: attrString(attrs, p.mapping.ID),
		Email:      attrString(attrs, p.mapping.Email),
		Name:       attrString(attrs, p.mapping.Name),
		Picture:    attrString(attrs, p.mapping.Picture),
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// attrString reads a userinfo attribute as a string. Numeric ids, like
// GitHub's, are rendered without an exponent.
func attrString(attrs map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	switch v := attrs[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
