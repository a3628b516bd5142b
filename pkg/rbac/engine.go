package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/observability"
	"github.com/queryforge/trustcore/pkg/storage"
)

var (
	// ErrRoleExists indicates a create for a name already taken.
	ErrRoleExists = errors.New("rbac: role already exists")

	// ErrRoleNotFound indicates the named role does not exist.
	ErrRoleNotFound = errors.New("rbac: role not found")

	// ErrSystemRole indicates an attempt to mutate or delete a system role.
	ErrSystemRole = errors.New("rbac: system roles are immutable")

	// ErrRoleInUse indicates a delete for a role still assigned to users.
	ErrRoleInUse = errors.New("rbac: role is assigned to users")
)

// Config holds permission engine configuration.
type Config struct {
	// CacheTTL bounds the lifetime of cached per-user permission sets.
	CacheTTL time.Duration
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{CacheTTL: time.Hour}
}

// Engine resolves effective permission sets and evaluates access
// decisions.
type Engine struct {
	store  *Store
	config Config
	log    *logrus.Logger

	// Metrics is optional; a nil value disables recording.
	Metrics *observability.Metrics
}

// NewEngine creates a permission engine backed by the given store.
func NewEngine(store storage.Store, config Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	if config.CacheTTL == 0 {
		config = DefaultConfig()
	}
	return &Engine{
		store:  NewStore(store),
		config: config,
		log:    log,
	}
}

// Initialize seeds the system role catalog. Existing system role records
// are overwritten so code upgrades take effect; custom roles are untouched.
func (e *Engine) Initialize(ctx context.Context) error {
	now := time.Now().UTC()
	for _, role := range SystemRoles() {
		role.CreatedAt = now
		role.UpdatedAt = now
		if err := e.store.PutRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to seed system role %s: %w", role.Name, err)
		}
	}
	e.log.Info("Seeded system roles")
	return nil
}

// CreateRole creates a custom role. The name must be unused.
func (e *Engine) CreateRole(ctx context.Context, name, description string, permissions []Permission, inheritsFrom []string, metadata map[string]string) (*Role, error) {
	_, err := e.store.GetRole(ctx, name)
	if err == nil {
		return nil, ErrRoleExists
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	role := &Role{
		Name:         name,
		Description:  description,
		Permissions:  permissions,
		InheritsFrom: inheritsFrom,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if role.Permissions == nil {
		role.Permissions = []Permission{}
	}

	if err := e.store.PutRole(ctx, role); err != nil {
		return nil, err
	}

	e.log.WithField("role", name).Info("Created role")
	return role, nil
}

// GetRole returns a role by name.
func (e *Engine) GetRole(ctx context.Context, name string) (*Role, error) {
	return e.store.GetRole(ctx, name)
}

// ListRoles returns all role definitions.
func (e *Engine) ListRoles(ctx context.Context) ([]Role, error) {
	return e.store.ListRoles(ctx)
}

// RoleUpdate carries the fields UpdateRole may change. Nil fields are
// left untouched.
type RoleUpdate struct {
	Description  *string
	Permissions  []Permission
	InheritsFrom []string
	Metadata     map[string]string
}

// UpdateRole applies a partial update to a custom role and invalidates
// the cached permissions of every user holding it.
func (e *Engine) UpdateRole(ctx context.Context, name string, update RoleUpdate) (*Role, error) {
	role, err := e.store.GetRole(ctx, name)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, ErrSystemRole
	}

	if update.Description != nil {
		role.Description = *update.Description
	}
	if update.Permissions != nil {
		role.Permissions = update.Permissions
	}
	if update.InheritsFrom != nil {
		role.InheritsFrom = update.InheritsFrom
	}
	if update.Metadata != nil {
		role.Metadata = update.Metadata
	}
	role.UpdatedAt = time.Now().UTC()

	if err := e.store.PutRole(ctx, role); err != nil {
		return nil, err
	}

	if err := e.invalidateRoleHolders(ctx, name); err != nil {
		return nil, err
	}

	e.log.WithField("role", name).Info("Updated role")
	return role, nil
}

// invalidateRoleHolders drops the cached permissions of every user
// directly holding the role. Users reaching it through inheritance fall
// back to cache TTL expiry.
func (e *Engine) invalidateRoleHolders(ctx context.Context, roleName string) error {
	holders, err := e.store.UsersWithRole(ctx, roleName)
	if err != nil {
		return err
	}
	for _, userID := range holders {
		if err := e.store.InvalidateUserPermissions(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRole removes a custom role that no user currently holds.
func (e *Engine) DeleteRole(ctx context.Context, name string) error {
	role, err := e.store.GetRole(ctx, name)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}

	holders, err := e.store.UsersWithRole(ctx, name)
	if err != nil {
		return err
	}
	if len(holders) > 0 {
		return fmt.Errorf("%w: %d users hold %s", ErrRoleInUse, len(holders), name)
	}

	if err := e.store.DeleteRole(ctx, name); err != nil {
		return err
	}

	e.log.WithField("role", name).Info("Deleted role")
	return nil
}

// AssignRoleToUser grants a role to a user, optionally tenant-scoped, and
// eagerly invalidates the user's cached permission set.
func (e *Engine) AssignRoleToUser(ctx context.Context, userID, roleName, tenantID string) error {
	if _, err := e.store.GetRole(ctx, roleName); err != nil {
		return err
	}

	assignments, err := e.store.GetUserAssignments(ctx, userID)
	if err != nil {
		return err
	}

	assignments = append(assignments, Assignment{
		RoleName:   roleName,
		TenantID:   tenantID,
		AssignedAt: time.Now().UTC(),
	})

	if err := e.store.PutUserAssignments(ctx, userID, assignments); err != nil {
		return err
	}
	if err := e.store.InvalidateUserPermissions(ctx, userID); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    roleName,
	}).Info("Assigned role to user")
	return nil
}

// RevokeRoleFromUser removes a matching assignment and eagerly
// invalidates the user's cached permission set. Revoking an assignment
// the user does not hold is a no-op.
func (e *Engine) RevokeRoleFromUser(ctx context.Context, userID, roleName, tenantID string) error {
	assignments, err := e.store.GetUserAssignments(ctx, userID)
	if err != nil {
		return err
	}

	kept := assignments[:0]
	for _, a := range assignments {
		if a.RoleName == roleName && a.TenantID == tenantID {
			continue
		}
		kept = append(kept, a)
	}

	if err := e.store.PutUserAssignments(ctx, userID, kept); err != nil {
		return err
	}
	if err := e.store.InvalidateUserPermissions(ctx, userID); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    roleName,
	}).Info("Revoked role from user")
	return nil
}

// GetUserRoles returns a user's raw assignment list.
func (e *Engine) GetUserRoles(ctx context.Context, userID string) ([]Assignment, error) {
	return e.store.GetUserAssignments(ctx, userID)
}

// GetUserPermissions resolves the user's effective permission set,
// expanding role inheritance, and caches the result.
func (e *Engine) GetUserPermissions(ctx context.Context, userID string) ([]Permission, error) {
	cached, hit, err := e.store.GetCachedPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if hit {
		e.Metrics.RecordPermissionCacheHit()
		return cached, nil
	}
	e.Metrics.RecordPermissionCacheMiss()

	assignments, err := e.store.GetUserAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Explicit worklist with a visited set: cyclic inherits_from chains
	// terminate and each reachable role contributes exactly once.
	worklist := make([]string, 0, len(assignments))
	for _, a := range assignments {
		worklist = append(worklist, a.RoleName)
	}

	visited := make(map[string]bool)
	seen := make(map[string]bool)
	permissions := []Permission{}

	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if visited[name] {
			continue
		}
		visited[name] = true

		role, err := e.store.GetRole(ctx, name)
		if errors.Is(err, ErrRoleNotFound) {
			// Assignment to a role deleted out from under it.
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, p := range role.Permissions {
			key := permissionKey(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			permissions = append(permissions, p)
		}

		worklist = append(worklist, role.InheritsFrom...)
	}

	if err := e.store.SetCachedPermissions(ctx, userID, permissions, e.config.CacheTTL); err != nil {
		return nil, err
	}
	return permissions, nil
}

// permissionKey is the dedup identity of a permission, including its
// conditions and resource allow-list.
func permissionKey(p Permission) string {
	data, err := json.Marshal(p)
	if err != nil {
		return p.String()
	}
	return string(data)
}

// CheckPermission evaluates whether a user may perform an action on a
// resource type, given caller-supplied context. Every check yields a
// decision; the default is deny.
func (e *Engine) CheckPermission(ctx context.Context, userID string, resourceType ResourceType, action Action, resourceID string, evalCtx EvalContext) (bool, error) {
	permissions, err := e.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed := evaluatePermissions(permissions, resourceType, action, resourceID, evalCtx)
	e.Metrics.RecordPermissionCheck(allowed)
	return allowed, nil
}

// evaluatePermissions applies deny-override-allow over the resolved set.
func evaluatePermissions(permissions []Permission, resourceType ResourceType, action Action, resourceID string, ctx EvalContext) bool {
	// Deny is absolute and checked first.
	for _, p := range permissions {
		if p.effect() == EffectDeny && permissionMatches(p, resourceType, action, resourceID, ctx) {
			return false
		}
	}
	for _, p := range permissions {
		if p.effect() == EffectAllow && permissionMatches(p, resourceType, action, resourceID, ctx) {
			return true
		}
	}
	return false
}

// permissionMatches reports whether a single permission covers the
// request.
func permissionMatches(p Permission, resourceType ResourceType, action Action, resourceID string, ctx EvalContext) bool {
	if p.ResourceType != resourceType {
		return false
	}
	if p.Action != action && p.Action != ActionAdmin {
		return false
	}
	if len(p.ResourceIDs) > 0 && resourceID != "" {
		found := false
		for _, id := range p.ResourceIDs {
			if id == resourceID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return evaluateConditions(p.Conditions, ctx)
}
