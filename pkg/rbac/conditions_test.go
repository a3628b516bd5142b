package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateConditions(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[Condition]bool
		ctx        EvalContext
		want       bool
	}{
		{
			name: "no conditions always holds",
			want: true,
		},
		{
			name:       "same tenant match",
			conditions: map[Condition]bool{ConditionSameTenant: true},
			ctx:        EvalContext{UserTenantID: "t1", ResourceTenantID: "t1"},
			want:       true,
		},
		{
			name:       "same tenant mismatch",
			conditions: map[Condition]bool{ConditionSameTenant: true},
			ctx:        EvalContext{UserTenantID: "t1", ResourceTenantID: "t2"},
			want:       false,
		},
		{
			name:       "owner match",
			conditions: map[Condition]bool{ConditionOwner: true},
			ctx:        EvalContext{UserID: "u1", ResourceOwnerID: "u1"},
			want:       true,
		},
		{
			name:       "owner or shared via share list",
			conditions: map[Condition]bool{ConditionOwnerOrShared: true},
			ctx:        EvalContext{UserID: "u2", ResourceOwnerID: "u1", ResourceSharedWith: []string{"u2", "u3"}},
			want:       true,
		},
		{
			name:       "shared requires membership",
			conditions: map[Condition]bool{ConditionShared: true},
			ctx:        EvalContext{UserID: "u4", ResourceSharedWith: []string{"u2", "u3"}},
			want:       false,
		},
		{
			name:       "api access flag",
			conditions: map[Condition]bool{ConditionAPIAccess: true},
			ctx:        EvalContext{IsAPIRequest: true},
			want:       true,
		},
		{
			name:       "advanced queries flag off",
			conditions: map[Condition]bool{ConditionAdvancedQueries: true},
			ctx:        EvalContext{},
			want:       false,
		},
		{
			name:       "false value is inert",
			conditions: map[Condition]bool{ConditionSameTenant: false},
			ctx:        EvalContext{UserTenantID: "t1", ResourceTenantID: "t2"},
			want:       true,
		},
		{
			name:       "all active conditions must hold",
			conditions: map[Condition]bool{ConditionSameTenant: true, ConditionOwner: true},
			ctx:        EvalContext{UserID: "u1", ResourceOwnerID: "u1", UserTenantID: "t1", ResourceTenantID: "t2"},
			want:       false,
		},
		{
			name:       "unknown condition fails closed",
			conditions: map[Condition]bool{Condition("geo_fence"): true},
			ctx:        EvalContext{},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateConditions(tt.conditions, tt.ctx))
		})
	}
}
