// Package rbac implements role-based access control with inheritance,
// allow/deny effects, and contextual conditions.
//
// # Overview
//
// Roles bundle permissions and may inherit from other roles by name. Users
// receive roles through assignments, optionally scoped to a tenant. The
// engine resolves a user's effective permission set by expanding the
// inheritance graph, caches the result, and evaluates access decisions
// against caller-supplied context.
//
// # Evaluation model
//
// A check partitions the resolved permission set into DENY and ALLOW:
//
//  1. Any matching DENY permission decides the check immediately (deny
//     overrides allow).
//  2. Otherwise any matching ALLOW permission grants access.
//  3. Otherwise the check is denied (default-deny).
//
// A permission matches when the resource type is equal, the action is
// equal or the permission carries the admin wildcard action, the
// resource-ID allow-list (when present) contains the requested resource,
// and every active condition evaluates true against the context.
//
// # Conditions
//
// Conditions form a closed set of named kinds, each bound to a pure
// predicate over an EvalContext:
//
//	same_tenant      - user and resource belong to the same tenant
//	owner            - user owns the resource
//	owner_or_shared  - user owns the resource or it is shared with them
//	shared           - the resource is shared with the user
//	api_access       - the request arrived through the API surface
//	advanced_queries - the user's plan enables advanced query features
//
// Extending conditions means adding a new kind and predicate, never
// parsing strings at evaluation time. The caller assembles the
// EvalContext; this package does not look anything up.
//
// # Inheritance
//
// Role resolution walks inherits_from with an explicit worklist and a
// visited set, so cyclic inheritance terminates and each reachable role
// contributes its permissions exactly once.
//
// # Caching
//
// Resolved permission sets are cached per user (TTL 1h) in the shared
// store and invalidated eagerly whenever an assignment or a role
// definition affecting that user changes, so a new assignment is visible
// to the next check without waiting for TTL expiry.
//
// # System roles
//
// A fixed catalog (super_admin, tenant_admin, user, viewer, analyst,
// api_user) is seeded at startup. System roles cannot be updated or
// deleted.
package rbac
