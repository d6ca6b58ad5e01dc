package workflow

import (
	"reflect"
	"testing"
)

func role(id string, order int) SignerRole {
	return SignerRole{ID: id, Label: id, Order: order}
}

func TestIsTriggerVisible(t *testing.T) {
	tests := []struct {
		name      string
		trigger   string
		orderMode string
		want      bool
	}{
		{"turn-to-sign under sequential", TriggerOnTurnToSign, OrderModeSequential, true},
		{"turn-to-sign under parallel", TriggerOnTurnToSign, OrderModeParallel, false},
		{"previous-roles under parallel", TriggerOnPreviousRolesSigned, OrderModeParallel, false},
		{"document-created under parallel", TriggerOnDocumentCreated, OrderModeParallel, true},
		{"all-complete under parallel", TriggerOnAllSignaturesComplete, OrderModeParallel, true},
		{"document-created under sequential", TriggerOnDocumentCreated, OrderModeSequential, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTriggerVisible(tt.trigger, tt.orderMode); got != tt.want {
				t.Errorf("IsTriggerVisible(%q, %q) = %v, want %v", tt.trigger, tt.orderMode, got, tt.want)
			}
		})
	}
}

func TestModeToggleKeepsEnabledFlag(t *testing.T) {
	triggers := TriggerMap{
		TriggerOnTurnToSign: {Enabled: true},
	}

	// Parallel mode hides the trigger but must not clear the stored flag.
	if IsTriggerVisible(TriggerOnTurnToSign, OrderModeParallel) {
		t.Fatal("expected trigger to be hidden under parallel mode")
	}
	if !triggers[TriggerOnTurnToSign].Enabled {
		t.Fatal("stored enabled flag was cleared by a visibility check")
	}
	if !IsTriggerVisible(TriggerOnTurnToSign, OrderModeSequential) {
		t.Fatal("expected trigger visible again under sequential mode")
	}
	if !triggers[TriggerOnTurnToSign].Enabled {
		t.Fatal("enabled flag should survive a mode round trip")
	}
}

func TestCountActiveTriggers(t *testing.T) {
	triggers := TriggerMap{
		TriggerOnDocumentCreated:       {Enabled: true},
		TriggerOnTurnToSign:            {Enabled: false},
		TriggerOnAllSignaturesComplete: {Enabled: true},
	}
	if got := CountActiveTriggers(triggers); got != 2 {
		t.Errorf("CountActiveTriggers = %d, want 2", got)
	}

	triggers[TriggerOnPreviousRolesSigned] = nil
	if got := CountActiveTriggers(triggers); got != 2 {
		t.Errorf("CountActiveTriggers with nil entry = %d, want 2", got)
	}

	if got := CountActiveTriggers(nil); got != 0 {
		t.Errorf("CountActiveTriggers(nil) = %d, want 0", got)
	}
}

func TestResolvePreviousRoles(t *testing.T) {
	roles := []SignerRole{role("A", 1), role("B", 2), role("C", 3)}

	tests := []struct {
		name    string
		config  *PreviousRolesConfig
		current SignerRole
		wantIDs []string
	}{
		{
			name:    "auto returns all lower-order roles",
			config:  &PreviousRolesConfig{Mode: PreviousRolesModeAuto},
			current: role("C", 3),
			wantIDs: []string{"A", "B"},
		},
		{
			name:    "nil config behaves as auto",
			config:  nil,
			current: role("B", 2),
			wantIDs: []string{"A"},
		},
		{
			name:    "custom keeps only selected preceding roles",
			config:  &PreviousRolesConfig{Mode: PreviousRolesModeCustom, SelectedRoleIDs: []string{"A"}},
			current: role("C", 3),
			wantIDs: []string{"A"},
		},
		{
			name:    "custom selection of a later role resolves empty",
			config:  &PreviousRolesConfig{Mode: PreviousRolesModeCustom, SelectedRoleIDs: []string{"C"}},
			current: role("B", 2),
			wantIDs: []string{},
		},
		{
			name:    "first role has no previous roles",
			config:  &PreviousRolesConfig{Mode: PreviousRolesModeAuto},
			current: role("A", 1),
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := ResolvePreviousRoles(tt.config, roles, tt.current)
			gotIDs := make([]string, 0, len(resolved))
			for _, r := range resolved {
				gotIDs = append(gotIDs, r.ID)
			}
			if !reflect.DeepEqual(gotIDs, tt.wantIDs) {
				t.Errorf("resolved ids = %v, want %v", gotIDs, tt.wantIDs)
			}
		})
	}
}

func TestResolvePreviousRolesSorted(t *testing.T) {
	roles := []SignerRole{role("C", 3), role("A", 1), role("B", 2)}
	resolved := ResolvePreviousRoles(nil, roles, role("D", 4))
	for i := 1; i < len(resolved); i++ {
		if resolved[i-1].Order > resolved[i].Order {
			t.Fatalf("resolved roles not sorted by order: %+v", resolved)
		}
	}
}

func TestSanitizePreviousRoles(t *testing.T) {
	roles := []SignerRole{role("A", 1), role("B", 2), role("C", 3)}

	config := &PreviousRolesConfig{
		Mode:            PreviousRolesModeCustom,
		SelectedRoleIDs: []string{"A", "C", "ghost"},
	}
	sanitized := SanitizePreviousRoles(config, roles, role("B", 2))
	if !reflect.DeepEqual(sanitized.SelectedRoleIDs, []string{"A"}) {
		t.Errorf("sanitized ids = %v, want [A]", sanitized.SelectedRoleIDs)
	}

	// Input config must not be mutated.
	if len(config.SelectedRoleIDs) != 3 {
		t.Error("sanitize mutated its input")
	}

	if got := SanitizePreviousRoles(nil, roles, role("B", 2)); got != nil {
		t.Errorf("sanitize of nil config = %+v, want nil", got)
	}

	auto := &PreviousRolesConfig{Mode: PreviousRolesModeAuto, SelectedRoleIDs: []string{"C"}}
	if got := SanitizePreviousRoles(auto, roles, role("B", 2)); len(got.SelectedRoleIDs) != 1 {
		t.Error("auto mode selections should pass through untouched")
	}
}

func TestSortRoles(t *testing.T) {
	roles := []SignerRole{role("C", 2), role("A", 1), role("B", 2)}
	sorted := SortRoles(roles)
	want := []string{"A", "B", "C"}
	for i, r := range sorted {
		if r.ID != want[i] {
			t.Fatalf("sorted order = %v, want %v", sorted, want)
		}
	}
	if roles[0].ID != "C" {
		t.Error("SortRoles mutated its input")
	}
}
