package content

import (
	"fmt"

	"parchment/api/internal/snapshot"
	"parchment/api/internal/workflow"
)

// ValidateForPublish runs the strict checks a draft must pass before it can
// be frozen. Draft saves stay lenient; publishing does not.
func ValidateForPublish(doc *snapshot.Document) Validation {
	var v Validation

	roleIDs := workflow.Set[string]{}
	seenOrders := map[int]string{}
	for i, role := range doc.SignerRoles {
		path := fmt.Sprintf("signerRoles[%d]", i)
		if role.ID == "" {
			v.addError(CodeDuplicateRoleID, path, "signer role has no id")
		} else if roleIDs.Contains(role.ID) {
			v.addError(CodeDuplicateRoleID, path, "duplicate signer role id %q", role.ID)
		} else {
			roleIDs.Add(role.ID)
		}
		if role.Label == "" {
			v.addError(CodeEmptyRoleLabel, path, "signer role requires a label")
		}
		if role.Order <= 0 {
			v.addError(CodeInvalidRoleOrder, path, "signing order must be positive, got %d", role.Order)
		} else if other, dup := seenOrders[role.Order]; dup {
			v.addError(CodeDuplicateOrder, path, "signing order %d already used by role %q", role.Order, other)
		} else {
			seenOrders[role.Order] = role.ID
		}
	}

	if !workflow.ValidOrderModes.Contains(doc.OrderMode) {
		v.addError(CodeInvalidOrderMode, "orderMode", "unknown order mode %q", doc.OrderMode)
	}

	notifications := doc.Workflow.Notifications
	if !workflow.ValidNotifyScopes.Contains(notifications.Scope) {
		v.addError(CodeInvalidScope, "workflow.notifications.scope", "unknown notification scope %q", notifications.Scope)
	}

	validateTriggerMap(&v, "workflow.notifications.globalTriggers", notifications.GlobalTriggers, doc.OrderMode, roleIDs)
	for i, rc := range notifications.RoleConfigs {
		path := fmt.Sprintf("workflow.notifications.roleConfigs[%d]", i)
		if !roleIDs.Contains(rc.RoleID) {
			v.addError(CodeUnknownRoleRef, path, "trigger config references unknown role %q", rc.RoleID)
		}
		validateTriggerMap(&v, path+".triggers", rc.Triggers, doc.OrderMode, roleIDs)
	}

	if len(doc.SignerRoles) == 0 {
		if anyTriggerEnabled(notifications) {
			v.addError(CodeNoSignerRoles, "signerRoles", "notification triggers are configured but the version has no signer roles")
		} else {
			v.addWarning(CodeNoSignerRoles, "signerRoles", "version has no signer roles")
		}
	}

	return v.normalized()
}

func validateTriggerMap(v *Validation, path string, triggers workflow.TriggerMap, orderMode string, roleIDs workflow.Set[string]) {
	for kind, settings := range triggers {
		if settings == nil {
			continue
		}
		triggerPath := path + "." + kind
		if settings.Enabled && orderMode == workflow.OrderModeParallel && workflow.SequentialOnlyTriggers.Contains(kind) {
			v.addError(CodeSequentialTrigger, triggerPath, "trigger %s requires sequential signing order", kind)
		}
		prc := settings.PreviousRolesConfig
		if prc == nil || prc.Mode != workflow.PreviousRolesModeCustom {
			continue
		}
		for _, id := range prc.SelectedRoleIDs {
			if !roleIDs.Contains(id) {
				v.addError(CodeUnknownRoleRef, triggerPath, "previous-roles selection references unknown role %q", id)
			}
		}
	}
}

func anyTriggerEnabled(cfg workflow.NotificationConfig) bool {
	for _, settings := range cfg.GlobalTriggers {
		if settings != nil && settings.Enabled {
			return true
		}
	}
	for _, rc := range cfg.RoleConfigs {
		for _, settings := range rc.Triggers {
			if settings != nil && settings.Enabled {
				return true
			}
		}
	}
	return false
}
