package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionMatches(t *testing.T) {
	tests := []struct {
		name     string
		perm     Permission
		resource string
		action   string
		want     bool
	}{
		{"exact match", Permission{Resource: "users", Action: "read"}, "users", "read", true},
		{"wrong action", Permission{Resource: "users", Action: "read"}, "users", "delete", false},
		{"wrong resource", Permission{Resource: "users", Action: "read"}, "billing", "read", false},
		{"wildcard action", Permission{Resource: "users", Action: "*"}, "users", "read", true},
		{"wildcard action other verb", Permission{Resource: "users", Action: "*"}, "users", "delete", true},
		{"wildcard action wrong resource", Permission{Resource: "users", Action: "*"}, "billing", "read", false},
		{"wildcard resource", Permission{Resource: "*", Action: "read"}, "billing", "read", true},
		{"wildcard resource wrong action", Permission{Resource: "*", Action: "read"}, "billing", "write", false},
		{"full wildcard", Permission{Resource: "*", Action: "*"}, "anything", "whatever", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.perm.Matches(tt.resource, tt.action))
		})
	}
}

func TestCombinatorString(t *testing.T) {
	assert.Equal(t, "any", CombinatorAny.String())
	assert.Equal(t, "all", CombinatorAll.String())
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "users:read", Permission{Resource: "users", Action: "read"}.String())
	assert.Equal(t, "users:read", Pair{Resource: "users", Action: "read"}.String())
}

func TestEvaluateCombinators(t *testing.T) {
	perms := []Permission{
		{Resource: "users", Action: "read"},
		{Resource: "roles", Action: "*"},
	}

	t.Run("any passes on one match", func(t *testing.T) {
		assert.True(t, evaluate(perms, CombinatorAny, []Pair{{"billing", "read"}, {"users", "read"}}))
	})

	t.Run("any fails with no match", func(t *testing.T) {
		assert.False(t, evaluate(perms, CombinatorAny, []Pair{{"billing", "read"}}))
	})

	t.Run("all requires every pair", func(t *testing.T) {
		assert.True(t, evaluate(perms, CombinatorAll, []Pair{{"users", "read"}, {"roles", "assign"}}))
		assert.False(t, evaluate(perms, CombinatorAll, []Pair{{"users", "read"}, {"billing", "read"}}))
	})
}
