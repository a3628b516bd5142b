package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/queryforge/trustcore/pkg/storage"
)

const (
	rolePrefix            = "rbac:role:"
	userRolesPrefix       = "rbac:user_roles:"
	userPermissionsPrefix = "rbac:user_permissions:"
)

// Store persists role definitions, user assignments, and the per-user
// permission cache in the shared keyed store.
type Store struct {
	store storage.Store
}

// NewStore creates a permission store.
func NewStore(store storage.Store) *Store {
	return &Store{store: store}
}

// GetRole returns a role by name, or ErrRoleNotFound.
func (s *Store) GetRole(ctx context.Context, name string) (*Role, error) {
	data, err := s.store.Get(ctx, rolePrefix+name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", name, err)
	}

	var role Role
	if err := json.Unmarshal([]byte(data), &role); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role %s: %w", name, err)
	}
	return &role, nil
}

// PutRole stores a role definition. Roles do not expire.
func (s *Store) PutRole(ctx context.Context, role *Role) error {
	data, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("failed to marshal role %s: %w", role.Name, err)
	}
	if err := s.store.Set(ctx, rolePrefix+role.Name, string(data), 0); err != nil {
		return fmt.Errorf("failed to store role %s: %w", role.Name, err)
	}
	return nil
}

// DeleteRole removes a role definition.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, rolePrefix+name); err != nil {
		return fmt.Errorf("failed to delete role %s: %w", name, err)
	}
	return nil
}

// ListRoles returns all stored roles.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	keys, err := s.store.Scan(ctx, rolePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan roles: %w", err)
	}

	roles := make([]Role, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", key, err)
		}

		var role Role
		if err := json.Unmarshal([]byte(data), &role); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// GetUserAssignments returns a user's role assignments. A user with no
// assignments yields an empty list.
func (s *Store) GetUserAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	data, err := s.store.Get(ctx, userRolesPrefix+userID)
	if errors.Is(err, storage.ErrNotFound) {
		return []Assignment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments for %s: %w", userID, err)
	}

	var assignments []Assignment
	if err := json.Unmarshal([]byte(data), &assignments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignments for %s: %w", userID, err)
	}
	return assignments, nil
}

// PutUserAssignments replaces a user's role assignment list.
func (s *Store) PutUserAssignments(ctx context.Context, userID string, assignments []Assignment) error {
	data, err := json.Marshal(assignments)
	if err != nil {
		return fmt.Errorf("failed to marshal assignments for %s: %w", userID, err)
	}
	if err := s.store.Set(ctx, userRolesPrefix+userID, string(data), 0); err != nil {
		return fmt.Errorf("failed to store assignments for %s: %w", userID, err)
	}
	return nil
}

// GetCachedPermissions returns the cached permission set for a user. The
// second result reports whether the cache held an entry.
func (s *Store) GetCachedPermissions(ctx context.Context, userID string) ([]Permission, bool, error) {
	data, err := s.store.Get(ctx, userPermissionsPrefix+userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached permissions for %s: %w", userID, err)
	}

	var permissions []Permission
	if err := json.Unmarshal([]byte(data), &permissions); err != nil {
		// Corrupt cache entry: drop it and report a miss.
		_ = s.store.Delete(ctx, userPermissionsPrefix+userID)
		return nil, false, nil
	}
	return permissions, true, nil
}

// SetCachedPermissions caches a user's resolved permission set.
func (s *Store) SetCachedPermissions(ctx context.Context, userID string, permissions []Permission, ttl time.Duration) error {
	data, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions for %s: %w", userID, err)
	}
	if err := s.store.Set(ctx, userPermissionsPrefix+userID, string(data), ttl); err != nil {
		return fmt.Errorf("failed to cache permissions for %s: %w", userID, err)
	}
	return nil
}

// InvalidateUserPermissions drops a user's cached permission set.
func (s *Store) InvalidateUserPermissions(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userPermissionsPrefix+userID); err != nil {
		return fmt.Errorf("failed to invalidate permissions for %s: %w", userID, err)
	}
	return nil
}

// UsersWithRole returns the IDs of all users currently holding a role.
func (s *Store) UsersWithRole(ctx context.Context, roleName string) ([]string, error) {
	keys, err := s.store.Scan(ctx, userRolesPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignments: %w", err)
	}

	var users []string
	for _, key := range keys {
		userID := strings.TrimPrefix(key, userRolesPrefix)
		assignments, err := s.GetUserAssignments(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, a := range assignments {
			if a.RoleName == roleName {
				users = append(users, userID)
				break
			}
		}
	}
	return users, nil
}
