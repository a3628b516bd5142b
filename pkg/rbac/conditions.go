package rbac

// conditionPredicate is a pure predicate over the evaluation context.
type conditionPredicate func(ctx EvalContext) bool

// conditionPredicates binds every known condition kind to its predicate.
// Adding a condition means adding an entry here, nothing else.
var conditionPredicates = map[Condition]conditionPredicate{
	ConditionSameTenant: func(ctx EvalContext) bool {
		return ctx.UserTenantID == ctx.ResourceTenantID
	},
	ConditionOwner: func(ctx EvalContext) bool {
		return ctx.UserID == ctx.ResourceOwnerID
	},
	ConditionOwnerOrShared: func(ctx EvalContext) bool {
		return ctx.UserID == ctx.ResourceOwnerID || sharedWith(ctx)
	},
	ConditionShared: sharedWith,
	ConditionAPIAccess: func(ctx EvalContext) bool {
		return ctx.IsAPIRequest
	},
	ConditionAdvancedQueries: func(ctx EvalContext) bool {
		return ctx.HasAdvancedFeatures
	},
}

func sharedWith(ctx EvalContext) bool {
	for _, id := range ctx.ResourceSharedWith {
		if id == ctx.UserID {
			return true
		}
	}
	return false
}

// evaluateConditions reports whether every active condition holds. A
// condition set to false is inert; an unknown condition kind fails closed.
func evaluateConditions(conditions map[Condition]bool, ctx EvalContext) bool {
	for kind, active := range conditions {
		if !active {
			continue
		}
		predicate, ok := conditionPredicates[kind]
		if !ok {
			return false
		}
		if !predicate(ctx) {
			return false
		}
	}
	return true
}
