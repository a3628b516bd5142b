package rbac

import (
	"strings"
	"time"
)

// ResourceType identifies a class of protected resources.
type ResourceType string

const (
	ResourceUser      ResourceType = "user"
	ResourceTenant    ResourceType = "tenant"
	ResourceQuery     ResourceType = "query"
	ResourceFile      ResourceType = "file"
	ResourceDashboard ResourceType = "dashboard"
	ResourceAPIKey    ResourceType = "api_key"
	ResourceBilling   ResourceType = "billing"
	ResourceAnalytics ResourceType = "analytics"
	ResourceSystem    ResourceType = "system"
)

// Action is an operation on a resource type.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	ActionManage  Action = "manage"

	// ActionAdmin is the administrative wildcard: a permission carrying
	// it matches any requested action on its resource type.
	ActionAdmin Action = "admin"
)

// Effect is the allow/deny polarity of a permission rule.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Condition names a contextual predicate a permission may require.
type Condition string

const (
	ConditionSameTenant      Condition = "same_tenant"
	ConditionOwner           Condition = "owner"
	ConditionOwnerOrShared   Condition = "owner_or_shared"
	ConditionShared          Condition = "shared"
	ConditionAPIAccess       Condition = "api_access"
	ConditionAdvancedQueries Condition = "advanced_queries"
)

// Permission is a fine-grained permission rule.
type Permission struct {
	ResourceType ResourceType       `json:"resource_type"`
	Action       Action             `json:"action"`
	Effect       Effect             `json:"effect,omitempty"`
	Conditions   map[Condition]bool `json:"conditions,omitempty"`
	ResourceIDs  []string           `json:"resource_ids,omitempty"`
}

// effect treats an unset Effect as allow.
func (p Permission) effect() Effect {
	if p.Effect == "" {
		return EffectAllow
	}
	return p.Effect
}

// String returns a compact representation, e.g. "allow:query:read".
func (p Permission) String() string {
	resource := string(p.ResourceType)
	if len(p.ResourceIDs) > 0 {
		resource += ":" + strings.Join(p.ResourceIDs, ",")
	}
	return string(p.effect()) + ":" + resource + ":" + string(p.Action)
}

// Role bundles permissions and optional inheritance.
type Role struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Permissions  []Permission      `json:"permissions"`
	InheritsFrom []string          `json:"inherits_from,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IsSystemRole bool              `json:"is_system_role"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Assignment records one role granted to a user, optionally tenant-scoped.
type Assignment struct {
	RoleName   string    `json:"role"`
	TenantID   string    `json:"tenant_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// EvalContext carries the caller-assembled facts condition predicates
// evaluate against. Populating it correctly is the caller's concern.
type EvalContext struct {
	UserID              string
	UserTenantID        string
	ResourceTenantID    string
	ResourceOwnerID     string
	ResourceSharedWith  []string
	IsAPIRequest        bool
	HasAdvancedFeatures bool
}
