package workflow

import "sort"

// IsTriggerVisible reports whether a trigger kind is meaningful under the
// given order mode. Sequential-only triggers are hidden under parallel
// mode; hiding never touches the stored enabled flag, so toggling the mode
// back restores exactly the previous configuration.
func IsTriggerVisible(trigger, orderMode string) bool {
	if orderMode == OrderModeSequential {
		return true
	}
	return !SequentialOnlyTriggers.Contains(trigger)
}

// CountActiveTriggers counts triggers whose enabled flag is set,
// independent of visibility under the current order mode.
func CountActiveTriggers(triggers TriggerMap) int {
	count := 0
	for _, settings := range triggers {
		if settings != nil && settings.Enabled {
			count++
		}
	}
	return count
}

// ResolvePreviousRoles returns the roles that must sign before currentRole,
// sorted by order. In auto mode that is every role with a lower order. In
// custom mode it is the selected subset, filtered down to roles that
// actually precede currentRole so stale selections from a past reorder
// never widen the gate.
func ResolvePreviousRoles(config *PreviousRolesConfig, allRoles []SignerRole, currentRole SignerRole) []SignerRole {
	mode := PreviousRolesModeAuto
	if config != nil && config.Mode != "" {
		mode = config.Mode
	}

	var selected Set[string]
	if mode == PreviousRolesModeCustom && config != nil {
		selected = NewSet(config.SelectedRoleIDs)
	}

	resolved := make([]SignerRole, 0, len(allRoles))
	for _, role := range allRoles {
		if role.Order >= currentRole.Order {
			continue
		}
		if mode == PreviousRolesModeCustom && !selected.Contains(role.ID) {
			continue
		}
		resolved = append(resolved, role)
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Order < resolved[j].Order
	})
	return resolved
}

// SanitizePreviousRoles returns a copy of config with selected role ids
// filtered down to roles preceding currentRole. Persisted data can name
// roles at or after the current position when a reorder happened through
// another code path; the repair is silent. Auto mode needs no repair since
// the preceding set is computed on demand.
func SanitizePreviousRoles(config *PreviousRolesConfig, allRoles []SignerRole, currentRole SignerRole) *PreviousRolesConfig {
	if config == nil {
		return nil
	}
	sanitized := &PreviousRolesConfig{Mode: config.Mode}
	if config.Mode != PreviousRolesModeCustom {
		sanitized.SelectedRoleIDs = append([]string(nil), config.SelectedRoleIDs...)
		return sanitized
	}

	orderByID := make(map[string]int, len(allRoles))
	for _, role := range allRoles {
		orderByID[role.ID] = role.Order
	}
	for _, id := range config.SelectedRoleIDs {
		order, ok := orderByID[id]
		if !ok || order >= currentRole.Order {
			continue
		}
		sanitized.SelectedRoleIDs = append(sanitized.SelectedRoleIDs, id)
	}
	return sanitized
}

// SortRoles returns the roles sorted by order, ties broken by label so the
// result is stable even for legacy data with duplicated orders.
func SortRoles(roles []SignerRole) []SignerRole {
	sorted := append([]SignerRole(nil), roles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].Label < sorted[j].Label
	})
	return sorted
}
