package notify

import (
	"testing"

	"parchment/api/internal/workflow"
)

func threeRoles() []workflow.SignerRole {
	return []workflow.SignerRole{
		{ID: "role-a", Label: "Tenant", Order: 0},
		{ID: "role-b", Label: "Landlord", Order: 1},
		{ID: "role-c", Label: "Witness", Order: 2},
	}
}

func globalConfig(triggers workflow.TriggerMap) workflow.Config {
	return workflow.Config{
		Notifications: workflow.NotificationConfig{
			Scope:          workflow.NotifyScopeGlobal,
			GlobalTriggers: triggers,
		},
	}
}

func roleIDs(planned []Notification) []string {
	ids := make([]string, 0, len(planned))
	for _, n := range planned {
		ids = append(ids, n.RoleID)
	}
	return ids
}

func TestPlanDocumentCreatedNotifiesAllRoles(t *testing.T) {
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnDocumentCreated: {Enabled: true},
	})

	planned := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.Set[string]{}, Event{Kind: EventDocumentCreated})
	if len(planned) != 3 {
		t.Fatalf("expected 3 notifications, got %d: %v", len(planned), roleIDs(planned))
	}
	for _, n := range planned {
		if n.Trigger != workflow.TriggerOnDocumentCreated {
			t.Errorf("unexpected trigger %s", n.Trigger)
		}
	}
}

func TestPlanDocumentCreatedDisabledTrigger(t *testing.T) {
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnDocumentCreated: {Enabled: false},
	})

	planned := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.Set[string]{}, Event{Kind: EventDocumentCreated})
	if len(planned) != 0 {
		t.Fatalf("expected no notifications, got %v", roleIDs(planned))
	}
}

func TestPlanTurnToSignFiresWhenUnblocked(t *testing.T) {
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnTurnToSign: {Enabled: true},
	})
	signed := workflow.NewSet([]string{"role-a"})

	planned := Plan(threeRoles(), workflow.OrderModeSequential, cfg, signed, Event{Kind: EventRoleSigned, SignedRoleID: "role-a"})
	if len(planned) != 1 || planned[0].RoleID != "role-b" {
		t.Fatalf("expected role-b to be notified, got %v", roleIDs(planned))
	}
	if planned[0].Trigger != workflow.TriggerOnTurnToSign {
		t.Errorf("unexpected trigger %s", planned[0].Trigger)
	}
}

func TestPlanTurnToSignHiddenUnderParallelMode(t *testing.T) {
	// The enabled flag survives a mode switch, but the trigger must not
	// fire while parallel mode hides it.
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnTurnToSign: {Enabled: true},
	})
	signed := workflow.NewSet([]string{"role-a"})

	planned := Plan(threeRoles(), workflow.OrderModeParallel, cfg, signed, Event{Kind: EventRoleSigned, SignedRoleID: "role-a"})
	if len(planned) != 0 {
		t.Fatalf("expected no notifications under parallel mode, got %v", roleIDs(planned))
	}
}

func TestPlanPreviousRolesSignedCustomGate(t *testing.T) {
	// Witness is gated on Tenant only; Landlord signing must not notify.
	cfg := workflow.Config{
		Notifications: workflow.NotificationConfig{
			Scope: workflow.NotifyScopeIndividual,
			RoleConfigs: []workflow.RoleNotifyConfig{
				{
					RoleID: "role-c",
					Triggers: workflow.TriggerMap{
						workflow.TriggerOnPreviousRolesSigned: {
							Enabled: true,
							PreviousRolesConfig: &workflow.PreviousRolesConfig{
								Mode:            workflow.PreviousRolesModeCustom,
								SelectedRoleIDs: []string{"role-a"},
							},
						},
					},
				},
			},
		},
	}

	planned := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.NewSet([]string{"role-b"}),
		Event{Kind: EventRoleSigned, SignedRoleID: "role-b"})
	if len(planned) != 0 {
		t.Fatalf("landlord signing should not notify witness, got %v", roleIDs(planned))
	}

	planned = Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.NewSet([]string{"role-a"}),
		Event{Kind: EventRoleSigned, SignedRoleID: "role-a"})
	if len(planned) != 1 || planned[0].RoleID != "role-c" {
		t.Fatalf("tenant signing should notify witness, got %v", roleIDs(planned))
	}
}

func TestPlanIndividualScopeFallsBackToGlobal(t *testing.T) {
	// Only role-c carries its own trigger map; the others inherit the
	// global one.
	cfg := workflow.Config{
		Notifications: workflow.NotificationConfig{
			Scope: workflow.NotifyScopeIndividual,
			GlobalTriggers: workflow.TriggerMap{
				workflow.TriggerOnDocumentCreated: {Enabled: true},
			},
			RoleConfigs: []workflow.RoleNotifyConfig{
				{
					RoleID: "role-c",
					Triggers: workflow.TriggerMap{
						workflow.TriggerOnDocumentCreated: {Enabled: false},
					},
				},
			},
		},
	}

	planned := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.Set[string]{}, Event{Kind: EventDocumentCreated})
	ids := roleIDs(planned)
	if len(ids) != 2 || ids[0] != "role-a" || ids[1] != "role-b" {
		t.Fatalf("expected role-a and role-b via global fallback, got %v", ids)
	}
}

func TestPlanNotifiesEachRoleOnce(t *testing.T) {
	// role-c becomes unblocked exactly when role-b signs, not before.
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnTurnToSign: {Enabled: true},
	})

	first := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.NewSet([]string{"role-a"}),
		Event{Kind: EventRoleSigned, SignedRoleID: "role-a"})
	if len(first) != 1 || first[0].RoleID != "role-b" {
		t.Fatalf("after role-a: got %v", roleIDs(first))
	}

	second := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.NewSet([]string{"role-a", "role-b"}),
		Event{Kind: EventRoleSigned, SignedRoleID: "role-b"})
	if len(second) != 1 || second[0].RoleID != "role-c" {
		t.Fatalf("after role-b: got %v", roleIDs(second))
	}
}

func TestPlanAllComplete(t *testing.T) {
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnAllSignaturesComplete: {Enabled: true},
	})
	signed := workflow.NewSet([]string{"role-a", "role-b", "role-c"})

	planned := Plan(threeRoles(), workflow.OrderModeParallel, cfg, signed, Event{Kind: EventAllComplete})
	if len(planned) != 3 {
		t.Fatalf("expected all roles notified on completion, got %v", roleIDs(planned))
	}
}

func TestPlanSignedRolesAreSkipped(t *testing.T) {
	cfg := globalConfig(workflow.TriggerMap{
		workflow.TriggerOnTurnToSign: {Enabled: true},
	})
	// role-a already signed; it must never show up again for signing events.
	planned := Plan(threeRoles(), workflow.OrderModeSequential, cfg, workflow.NewSet([]string{"role-a"}),
		Event{Kind: EventRoleSigned, SignedRoleID: "role-a"})
	for _, n := range planned {
		if n.RoleID == "role-a" {
			t.Fatal("signed role must not be re-notified")
		}
	}
}
