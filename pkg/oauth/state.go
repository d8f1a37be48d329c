package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mkurtis/warden/pkg/observability"
)

const stateKeyPrefix = "oauth:state:"

// stateLength is the number of random bytes behind each state value
const stateLength = 32

// StateData is what a pending authorization remembers
type StateData struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri,omitempty"`

	// UserID is set when an authenticated user links a provider identity
	// instead of logging in
	UserID *int64 `json:"user_id,omitempty"`
}

// StateStore keeps CSRF state in Redis so every server process sees the
// same pending authorizations and nothing survives past its TTL
type StateStore struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewStateStore creates a state store with the given TTL
func NewStateStore(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *StateStore {
	return &StateStore{
		client:  client,
		ttl:     ttl,
		metrics: metrics,
	}
}

// Create stores a pending authorization and returns its opaque state
func (s *StateStore) Create(ctx context.Context, data StateData) (string, error) {
	randomBytes := make([]byte, stateLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(randomBytes)

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state data: %w", err)
	}

	if err := s.client.Set(ctx, stateKeyPrefix+state, payload, s.ttl).Err(); err != nil {
		s.metrics.OAuthStateTotal.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	s.metrics.OAuthStateTotal.WithLabelValues("create", "ok").Inc()
	return state, nil
}

// Consume atomically fetches and deletes a pending authorization. It
// returns ok=false for any missing, expired, replayed or mismatched
// state: the input is attacker-controlled and absence is expected, so
// none of those are errors.
func (s *StateStore) Consume(ctx context.Context, state, provider string) (*StateData, bool, error) {
	payload, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		s.metrics.OAuthStateTotal.WithLabelValues("consume", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		s.metrics.OAuthStateTotal.WithLabelValues("consume", "error").Inc()
		return nil, false, fmt.Errorf("failed to consume state: %w", err)
	}

	var data StateData
	if err := json.Unmarshal(payload, &data); err != nil {
		s.metrics.OAuthStateTotal.WithLabelValues("consume", "error").Inc()
		return nil, false, fmt.Errorf("failed to unmarshal state data: %w", err)
	}

	// Consumed either way: a state created for one provider never
	// validates a callback from another
	if data.Provider != provider {
		s.metrics.OAuthStateTotal.WithLabelValues("consume", "mismatch").Inc()
		return nil, false, nil
	}

	s.metrics.OAuthStateTotal.WithLabelValues("consume", "ok").Inc()
	return &data, true, nil
}
