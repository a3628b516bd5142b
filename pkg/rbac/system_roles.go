package rbac

// System role names seeded at startup.
const (
	RoleSuperAdmin  = "super_admin"
	RoleTenantAdmin = "tenant_admin"
	RoleUser        = "user"
	RoleViewer      = "viewer"
	RoleAnalyst     = "analyst"
	RoleAPIUser     = "api_user"
)

func sameTenant() map[Condition]bool {
	return map[Condition]bool{ConditionSameTenant: true}
}

func owner() map[Condition]bool {
	return map[Condition]bool{ConditionOwner: true}
}

func ownerOrShared() map[Condition]bool {
	return map[Condition]bool{ConditionOwnerOrShared: true}
}

func shared() map[Condition]bool {
	return map[Condition]bool{ConditionShared: true}
}

func apiAccess() map[Condition]bool {
	return map[Condition]bool{ConditionAPIAccess: true}
}

// SystemRoles returns the fixed catalog of immutable system roles.
func SystemRoles() []Role {
	return []Role{
		{
			Name:         RoleSuperAdmin,
			Description:  "System administrator with full access",
			IsSystemRole: true,
			Permissions: []Permission{
				{ResourceType: ResourceSystem, Action: ActionAdmin, Effect: EffectAllow},
				{ResourceType: ResourceTenant, Action: ActionManage, Effect: EffectAllow},
				{ResourceType: ResourceUser, Action: ActionManage, Effect: EffectAllow},
				{ResourceType: ResourceBilling, Action: ActionManage, Effect: EffectAllow},
				{ResourceType: ResourceAnalytics, Action: ActionRead, Effect: EffectAllow},
			},
		},
		{
			Name:         RoleTenantAdmin,
			Description:  "Tenant administrator",
			IsSystemRole: true,
			Permissions: []Permission{
				{ResourceType: ResourceUser, Action: ActionManage, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceQuery, Action: ActionManage, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceFile, Action: ActionManage, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceDashboard, Action: ActionManage, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceAPIKey, Action: ActionManage, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceBilling, Action: ActionRead, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceAnalytics, Action: ActionRead, Effect: EffectAllow, Conditions: sameTenant()},
			},
		},
		{
			Name:         RoleUser,
			Description:  "Standard user",
			IsSystemRole: true,
			Permissions: []Permission{
				{ResourceType: ResourceQuery, Action: ActionCreate, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceQuery, Action: ActionRead, Effect: EffectAllow, Conditions: ownerOrShared()},
				{ResourceType: ResourceQuery, Action: ActionUpdate, Effect: EffectAllow, Conditions: owner()},
				{ResourceType: ResourceQuery, Action: ActionDelete, Effect: EffectAllow, Conditions: owner()},
				{ResourceType: ResourceFile, Action: ActionCreate, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceFile, Action: ActionRead, Effect: EffectAllow, Conditions: ownerOrShared()},
				{ResourceType: ResourceFile, Action: ActionUpdate, Effect: EffectAllow, Conditions: owner()},
				{ResourceType: ResourceFile, Action: ActionDelete, Effect: EffectAllow, Conditions: owner()},
				{ResourceType: ResourceDashboard, Action: ActionCreate, Effect: EffectAllow, Conditions: sameTenant()},
				{ResourceType: ResourceDashboard, Action: ActionRead, Effect: EffectAllow, Conditions: ownerOrShared()},
				{ResourceType: ResourceDashboard, Action: ActionUpdate, Effect: EffectAllow, Conditions: owner()},
			},
		},
		{
			Name:         RoleViewer,
			Description:  "Read-only user",
			IsSystemRole: true,
			Permissions: []Permission{
				{ResourceType: ResourceQuery, Action: ActionRead, Effect: EffectAllow, Conditions: shared()},
				{ResourceType: ResourceFile, Action: ActionRead, Effect: EffectAllow, Conditions: shared()},
				{ResourceType: ResourceDashboard, Action: ActionRead, Effect: EffectAllow, Conditions: shared()},
			},
		},
		{
			Name:         RoleAnalyst,
			Description:  "Data analyst with advanced query permissions",
			IsSystemRole: true,
			InheritsFrom: []string{RoleUser},
			Permissions: []Permission{
				{ResourceType: ResourceQuery, Action: ActionExecute, Effect: EffectAllow, Conditions: map[Condition]bool{ConditionAdvancedQueries: true}},
				{ResourceType: ResourceAnalytics, Action: ActionRead, Effect: EffectAllow, Conditions: sameTenant()},
			},
		},
		{
			Name:         RoleAPIUser,
			Description:  "API access user",
			IsSystemRole: true,
			Permissions: []Permission{
				{ResourceType: ResourceQuery, Action: ActionCreate, Effect: EffectAllow, Conditions: apiAccess()},
				{ResourceType: ResourceQuery, Action: ActionRead, Effect: EffectAllow, Conditions: apiAccess()},
				{ResourceType: ResourceFile, Action: ActionCreate, Effect: EffectAllow, Conditions: apiAccess()},
				{ResourceType: ResourceFile, Action: ActionRead, Effect: EffectAllow, Conditions: apiAccess()},
			},
		},
	}
}
