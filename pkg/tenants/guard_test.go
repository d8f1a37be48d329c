package tenants

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/observability"
)

type fakeAuthorizer struct {
	allow bool
}

func (f *fakeAuthorizer) HasExactPermission(ctx context.Context, userID, tenantID int64, resource, action string) (bool, error) {
	return f.allow, nil
}

type recordingAuditor struct {
	events []*audit.Event
}

func (r *recordingAuditor) Log(ctx context.Context, event *audit.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditor) Close() error { return nil }

func newTestGuard(allow bool) (*Guard, *recordingAuditor) {
	auditor := &recordingAuditor{}
	guard := NewGuard(
		&fakeAuthorizer{allow: allow},
		auditor,
		observability.NewLogger(observability.ErrorLevel, io.Discard),
	)
	return guard, auditor
}

func TestBypassGranted(t *testing.T) {
	guard, auditor := newTestGuard(true)

	scope, err := guard.Bypass(context.Background(), 5, 10)
	require.NoError(t, err)

	assert.True(t, scope.Bypassed())
	assert.True(t, scope.Valid())

	require.Len(t, auditor.events, 1, "every bypass grant is audited")
	assert.Equal(t, audit.EventTypeTenantBypass, auditor.events[0].EventType)
	assert.Equal(t, audit.EventStatusSuccess, auditor.events[0].Status)
}

func TestBypassDenied(t *testing.T) {
	guard, auditor := newTestGuard(false)

	_, err := guard.Bypass(context.Background(), 5, 10)
	assert.ErrorIs(t, err, ErrBypassDenied)

	require.Len(t, auditor.events, 1, "denials are audited too")
	assert.Equal(t, audit.EventStatusDenied, auditor.events[0].Status)
}

func TestBypassScopeCrossesTenants(t *testing.T) {
	guard, _ := newTestGuard(true)

	scope, err := guard.Bypass(context.Background(), 5, 10)
	require.NoError(t, err)

	assert.NoError(t, scope.Check(10))
	assert.NoError(t, scope.Check(999), "a bypassed scope accepts rows from any tenant")
}

func TestViolationIsAudited(t *testing.T) {
	guard, auditor := newTestGuard(false)

	err := guard.Violation(context.Background(), NewScope(10), 20)
	assert.ErrorIs(t, err, ErrScopeViolation)

	require.Len(t, auditor.events, 1)
	assert.Equal(t, audit.EventTypeTenantViolation, auditor.events[0].EventType)
}
