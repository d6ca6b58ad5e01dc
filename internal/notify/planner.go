package notify

import (
	"parchment/api/internal/workflow"
)

// EventKind identifies what just happened to a document.
type EventKind string

const (
	EventDocumentCreated EventKind = "document_created"
	EventRoleSigned      EventKind = "role_signed"
	EventAllComplete     EventKind = "all_complete"
)

// Event is a signing lifecycle change the planner reacts to.
type Event struct {
	Kind EventKind
	// SignedRoleID names the role that just signed, for EventRoleSigned.
	SignedRoleID string
}

// Notification is a single planned email: which role to notify and which
// trigger fired for it.
type Notification struct {
	RoleID    string
	RoleLabel string
	Trigger   string
}

// Plan computes which roles should be notified for an event, given the
// version's workflow configuration and the set of roles that have already
// signed. Triggers hidden by the current order mode never fire, even when
// their stored enabled flag is still set.
func Plan(roles []workflow.SignerRole, orderMode string, cfg workflow.Config, signed workflow.Set[string], ev Event) []Notification {
	var planned []Notification

	for _, role := range roles {
		switch ev.Kind {
		case EventDocumentCreated:
			if enabled(cfg, role.ID, workflow.TriggerOnDocumentCreated, orderMode) != nil {
				planned = append(planned, Notification{
					RoleID:    role.ID,
					RoleLabel: role.Label,
					Trigger:   workflow.TriggerOnDocumentCreated,
				})
			}

		case EventRoleSigned:
			if signed.Contains(role.ID) {
				continue
			}
			if n, ok := planRoleSigned(roles, orderMode, cfg, signed, ev.SignedRoleID, role); ok {
				planned = append(planned, n)
			}

		case EventAllComplete:
			if enabled(cfg, role.ID, workflow.TriggerOnAllSignaturesComplete, orderMode) != nil {
				planned = append(planned, Notification{
					RoleID:    role.ID,
					RoleLabel: role.Label,
					Trigger:   workflow.TriggerOnAllSignaturesComplete,
				})
			}
		}
	}

	return planned
}

// planRoleSigned decides whether one unsigned role should be notified now
// that signedRoleID has signed. Turn-to-sign fires when every role ordered
// before it has signed; previous-roles-signed fires when the resolved gate
// set has signed. Both require the just-signed role to be part of the gate
// so a role is notified exactly once, at the signature that unblocked it.
func planRoleSigned(roles []workflow.SignerRole, orderMode string, cfg workflow.Config, signed workflow.Set[string], signedRoleID string, role workflow.SignerRole) (Notification, bool) {
	if settings := enabled(cfg, role.ID, workflow.TriggerOnTurnToSign, orderMode); settings != nil {
		lower := lowerOrderRoles(roles, role)
		if allSigned(lower, signed) && containsRole(lower, signedRoleID) {
			return Notification{
				RoleID:    role.ID,
				RoleLabel: role.Label,
				Trigger:   workflow.TriggerOnTurnToSign,
			}, true
		}
	}

	if settings := enabled(cfg, role.ID, workflow.TriggerOnPreviousRolesSigned, orderMode); settings != nil {
		gate := workflow.ResolvePreviousRoles(settings.PreviousRolesConfig, roles, role)
		if len(gate) > 0 && allSigned(gate, signed) && containsRole(gate, signedRoleID) {
			return Notification{
				RoleID:    role.ID,
				RoleLabel: role.Label,
				Trigger:   workflow.TriggerOnPreviousRolesSigned,
			}, true
		}
	}

	return Notification{}, false
}

// enabled returns the trigger settings when the trigger is both enabled for
// the role and visible under the order mode, nil otherwise.
func enabled(cfg workflow.Config, roleID, trigger, orderMode string) *workflow.TriggerSettings {
	if !workflow.IsTriggerVisible(trigger, orderMode) {
		return nil
	}

	// Individual scope overrides per role; a role without its own map
	// falls back to the global triggers.
	triggers := cfg.Notifications.GlobalTriggers
	if cfg.Notifications.Scope == workflow.NotifyScopeIndividual {
		for _, rc := range cfg.Notifications.RoleConfigs {
			if rc.RoleID == roleID {
				triggers = rc.Triggers
				break
			}
		}
	}

	settings, ok := triggers[trigger]
	if !ok || settings == nil || !settings.Enabled {
		return nil
	}
	return settings
}

func lowerOrderRoles(roles []workflow.SignerRole, role workflow.SignerRole) []workflow.SignerRole {
	var lower []workflow.SignerRole
	for _, r := range roles {
		if r.Order < role.Order {
			lower = append(lower, r)
		}
	}
	return lower
}

func allSigned(roles []workflow.SignerRole, signed workflow.Set[string]) bool {
	for _, r := range roles {
		if !signed.Contains(r.ID) {
			return false
		}
	}
	return true
}

func containsRole(roles []workflow.SignerRole, id string) bool {
	for _, r := range roles {
		if r.ID == id {
			return true
		}
	}
	return false
}
