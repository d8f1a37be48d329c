package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/tenants"
)

const tenantCreateAttempts = 3

// Coordinator drives the OAuth login flow end to end
type Coordinator struct {
	registry        *Registry
	states          *StateStore
	store           *authn.Store
	auth            *authn.Service
	exchangeTimeout time.Duration
	logger          *observability.Logger
	metrics         *observability.Metrics
}

// NewCoordinator creates an OAuth flow coordinator
func NewCoordinator(registry *Registry, states *StateStore, store *authn.Store, auth *authn.Service, exchangeTimeout time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		registry:        registry,
		states:          states,
		store:           store,
		auth:            auth,
		exchangeTimeout: exchangeTimeout,
		logger:          logger,
		metrics:         metrics,
	}
}

// Begin creates CSRF state and returns the provider redirect URL
func (c *Coordinator) Begin(ctx context.Context, providerName, redirectURI string, userID *int64) (string, error) {
	provider, err := c.registry.Get(providerName)
	if err != nil {
		return "", err
	}

	state, err := c.states.Create(ctx, StateData{
		Provider:    providerName,
		RedirectURI: redirectURI,
		UserID:      userID,
	})
	if err != nil {
		c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "authorize", "error").Inc()
		return "", err
	}

	c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "authorize", "ok").Inc()
	return provider.AuthCodeURL(state), nil
}

// Complete validates the callback, exchanges the code and resolves the
// provider profile to a local account with a fresh token pair
func (c *Coordinator) Complete(ctx context.Context, providerName, code, state string) (*authn.User, *authn.TokenPair, string, error) {
	provider, err := c.registry.Get(providerName)
	if err != nil {
		return nil, nil, "", err
	}

	stateData, ok, err := c.states.Consume(ctx, state, providerName)
	if err != nil {
		return nil, nil, "", err
	}
	if !ok {
		c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "callback", "state_invalid").Inc()
		return nil, nil, "", ErrStateInvalid
	}

	// Both provider calls share one timeout: the provider is an external
	// collaborator and a hung exchange must not hold the request open
	exchangeCtx, cancel := context.WithTimeout(ctx, c.exchangeTimeout)
	defer cancel()

	start := time.Now()
	token, err := provider.Exchange(exchangeCtx, code)
	c.metrics.OAuthExchangeDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "exchange", "error").Inc()
		return nil, nil, "", fmt.Errorf("code exchange: %w: %v", ErrProviderFailure, err)
	}

	info, err := provider.FetchUserInfo(exchangeCtx, token)
	if err != nil {
		if errors.Is(err, ErrIncompleteProfile) {
			c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "userinfo", "incomplete").Inc()
			return nil, nil, "", err
		}
		c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "userinfo", "error").Inc()
		return nil, nil, "", fmt.Errorf("userinfo fetch: %w: %v", ErrProviderFailure, err)
	}

	user, err := c.resolveOrCreateUser(ctx, info, stateData.UserID)
	if err != nil {
		c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "resolve", "error").Inc()
		return nil, nil, "", err
	}

	pair, err := c.auth.IssueTokensFor(ctx, user)
	if err != nil {
		return nil, nil, "", err
	}

	c.metrics.OAuthFlowsTotal.WithLabelValues(providerName, "callback", "ok").Inc()
	return user, pair, stateData.RedirectURI, nil
}

// resolveOrCreateUser maps a provider profile to a local account.
// Lookup order: exact provider identity, then the linking user from
// state, then email, then a fresh tenant owned by the new user.
func (c *Coordinator) resolveOrCreateUser(ctx context.Context, info *UserInfo, linkUserID *int64) (*authn.User, error) {
	user, err := c.store.GetUserByProvider(ctx, info.Provider, info.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, authn.ErrNotFound) {
		return nil, err
	}

	if linkUserID != nil {
		return c.linkIdentity(ctx, *linkUserID, info)
	}

	user, err = c.store.GetUserByEmail(ctx, info.Email)
	if err == nil {
		// Existing password account with the same email: attach the
		// provider identity rather than create a duplicate
		return c.linkIdentityToUser(ctx, user, info)
	}
	if !errors.Is(err, authn.ErrNotFound) {
		return nil, err
	}

	return c.createUserWithTenant(ctx, info)
}

func (c *Coordinator) linkIdentity(ctx context.Context, userID int64, info *UserInfo) (*authn.User, error) {
	user, err := c.store.GetAuthUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	full, err := c.store.GetUserByID(ctx, user.TenantID, user.ID)
	if err != nil {
		return nil, err
	}
	return c.linkIdentityToUser(ctx, full, info)
}

func (c *Coordinator) linkIdentityToUser(ctx context.Context, user *authn.User, info *UserInfo) (*authn.User, error) {
	if err := c.store.LinkOAuthIdentity(ctx, user.ID, info.Provider, info.ProviderID); err != nil {
		return nil, err
	}

	provider := info.Provider
	providerID := info.ProviderID
	user.OAuthProvider = &provider
	user.OAuthProviderID = &providerID

	c.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"provider": info.Provider,
	}).Info("oauth identity linked")
	return user, nil
}

// createUserWithTenant provisions a brand new tenant owned by the OAuth
// user. A duplicated callback racing past the provider lookup loses to
// the (provider, provider_id) unique index and resolves to the winner's
// user instead of creating a second one.
func (c *Coordinator) createUserWithTenant(ctx context.Context, info *UserInfo) (*authn.User, error) {
	tenantName := info.Name
	if tenantName == "" {
		tenantName = info.Email
	}
	tenantName += "'s Workspace"

	provider := info.Provider
	providerID := info.ProviderID

	baseSlug := tenants.Slugify(tenantName)
	var lastErr error
	for attempt := 0; attempt < tenantCreateAttempts; attempt++ {
		slug := baseSlug
		if attempt > 0 {
			slug = baseSlug + "-" + uuid.NewString()[:8]
		}

		user := &authn.User{
			Email:           info.Email,
			FullName:        info.Name,
			OAuthProvider:   &provider,
			OAuthProviderID: &providerID,
		}
		_, err := c.store.CreateTenantAndOwner(ctx, tenantName, slug, user)
		if err == nil {
			c.logger.WithFields(map[string]interface{}{
				"user_id":  user.ID,
				"provider": info.Provider,
			}).Info("oauth user provisioned with new tenant")
			return user, nil
		}
		if !errors.Is(err, authn.ErrConflict) {
			return nil, err
		}
		lastErr = err

		// The conflict may be the provider identity landing first in a
		// racing callback
		if existing, lookupErr := c.store.GetUserByProvider(ctx, info.Provider, info.ProviderID); lookupErr == nil {
			return existing, nil
		}
	}
	return nil, lastErr
}
