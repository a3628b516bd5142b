package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/httputil"
	"github.com/queryforge/trustcore/pkg/rbac"
)

// RBACHandlers handles role and permission HTTP requests
type RBACHandlers struct {
	engine *rbac.Engine
	log    *logrus.Logger
}

// NewRBACHandlers creates a new RBAC handlers instance
func NewRBACHandlers(engine *rbac.Engine, log *logrus.Logger) *RBACHandlers {
	return &RBACHandlers{
		engine: engine,
		log:    log,
	}
}

// RegisterRoutes registers role and permission routes
func (h *RBACHandlers) RegisterRoutes(router *mux.Router) {
	// Role routes
	router.HandleFunc("/rbac/roles", h.createRole).Methods("POST")
	router.HandleFunc("/rbac/roles", h.listRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/{name}", h.getRole).Methods("GET")
	router.HandleFunc("/rbac/roles/{name}", h.updateRole).Methods("PUT")
	router.HandleFunc("/rbac/roles/{name}", h.deleteRole).Methods("DELETE")

	// Assignment routes
	router.HandleFunc("/rbac/users/{user_id}/roles", h.assignRole).Methods("POST")
	router.HandleFunc("/rbac/users/{user_id}/roles", h.getUserRoles).Methods("GET")
	router.HandleFunc("/rbac/users/{user_id}/roles/{role}", h.revokeRole).Methods("DELETE")
	router.HandleFunc("/rbac/users/{user_id}/permissions", h.getUserPermissions).Methods("GET")

	// Decision route
	router.HandleFunc("/rbac/check", h.checkPermission).Methods("POST")
}

// createRole handles POST /rbac/roles
func (h *RBACHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string            `json:"name"`
		Description  string            `json:"description"`
		Permissions  []rbac.Permission `json:"permissions"`
		InheritsFrom []string          `json:"inherits_from"`
		Metadata     map[string]string `json:"metadata"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	role, err := h.engine.CreateRole(r.Context(), req.Name, req.Description, req.Permissions, req.InheritsFrom, req.Metadata)
	if errors.Is(err, rbac.ErrRoleExists) {
		httputil.WriteConflict(w, "role already exists")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// listRoles handles GET /rbac/roles
func (h *RBACHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.engine.ListRoles(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// getRole handles GET /rbac/roles/{name}
func (h *RBACHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	role, err := h.engine.GetRole(r.Context(), name)
	if errors.Is(err, rbac.ErrRoleNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// updateRole handles PUT /rbac/roles/{name}
func (h *RBACHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req struct {
		Description  *string           `json:"description"`
		Permissions  []rbac.Permission `json:"permissions"`
		InheritsFrom []string          `json:"inherits_from"`
		Metadata     map[string]string `json:"metadata"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.engine.UpdateRole(r.Context(), name, rbac.RoleUpdate{
		Description:  req.Description,
		Permissions:  req.Permissions,
		InheritsFrom: req.InheritsFrom,
		Metadata:     req.Metadata,
	})
	if errors.Is(err, rbac.ErrRoleNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if errors.Is(err, rbac.ErrSystemRole) {
		httputil.WriteForbidden(w, "system roles cannot be modified")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// deleteRole handles DELETE /rbac/roles/{name}
func (h *RBACHandlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	err := h.engine.DeleteRole(r.Context(), name)
	if errors.Is(err, rbac.ErrRoleNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if errors.Is(err, rbac.ErrSystemRole) {
		httputil.WriteForbidden(w, "system roles cannot be deleted")
		return
	}
	if errors.Is(err, rbac.ErrRoleInUse) {
		httputil.WriteConflict(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// assignRole handles POST /rbac/users/{user_id}/roles
func (h *RBACHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req struct {
		Role     string `json:"role"`
		TenantID string `json:"tenant_id"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	err := h.engine.AssignRoleToUser(r.Context(), userID, req.Role, req.TenantID)
	if errors.Is(err, rbac.ErrRoleNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// getUserRoles handles GET /rbac/users/{user_id}/roles
func (h *RBACHandlers) getUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	assignments, err := h.engine.GetUserRoles(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// revokeRole handles DELETE /rbac/users/{user_id}/roles/{role}
func (h *RBACHandlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID := r.URL.Query().Get("tenant_id")

	if err := h.engine.RevokeRoleFromUser(r.Context(), vars["user_id"], vars["role"], tenantID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getUserPermissions handles GET /rbac/users/{user_id}/permissions
func (h *RBACHandlers) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	permissions, err := h.engine.GetUserPermissions(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, permissions)
}

// checkPermission handles POST /rbac/check
func (h *RBACHandlers) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string            `json:"user_id"`
		ResourceType rbac.ResourceType `json:"resource_type"`
		Action       rbac.Action       `json:"action"`
		ResourceID   string            `json:"resource_id"`
		Context      struct {
			UserTenantID        string   `json:"user_tenant_id"`
			ResourceTenantID    string   `json:"resource_tenant_id"`
			ResourceOwnerID     string   `json:"resource_owner_id"`
			ResourceSharedWith  []string `json:"resource_shared_with"`
			IsAPIRequest        bool     `json:"is_api_request"`
			HasAdvancedFeatures bool     `json:"has_advanced_features"`
		} `json:"context"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" || req.ResourceType == "" || req.Action == "" {
		httputil.WriteBadRequest(w, "user_id, resource_type, and action are required")
		return
	}

	allowed, err := h.engine.CheckPermission(r.Context(), req.UserID, req.ResourceType, req.Action, req.ResourceID, rbac.EvalContext{
		UserID:              req.UserID,
		UserTenantID:        req.Context.UserTenantID,
		ResourceTenantID:    req.Context.ResourceTenantID,
		ResourceOwnerID:     req.Context.ResourceOwnerID,
		ResourceSharedWith:  req.Context.ResourceSharedWith,
		IsAPIRequest:        req.Context.IsAPIRequest,
		HasAdvancedFeatures: req.Context.HasAdvancedFeatures,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"allowed": allowed})
}
