package content

import (
	"errors"
	"fmt"
	"sync"

	"parchment/api/internal/snapshot"
	"parchment/api/internal/workflow"
)

// Import applies a canonical document onto a surface and hydrates the
// config stores. It degrades gracefully: unrecognized block types and
// unresolved variable references are collected per block, blocks that do
// validate are still applied, and structural metadata (pagination, roles,
// workflow) is hydrated regardless of block findings.
//
// A nil document is the blank/new-document case: the surface is left
// untouched and the result is success with no diagnostics.
func Import(doc *snapshot.Document, surface Surface, stores StoreActions, catalog []Variable) (ImportResult, error) {
	result := ImportResult{Success: true}
	if doc == nil {
		result.Validation = result.Validation.normalized()
		return result, nil
	}

	stores.SetPaginationConfig(doc.Pagination)
	stores.SetSignerRoles(doc.SignerRoles)
	stores.SetWorkflowConfig(doc.OrderMode, sanitizeWorkflow(doc.Workflow, doc.SignerRoles))

	resolvable := resolvableVariables(catalog, doc.SignerRoles)

	applied := make([]snapshot.Node, 0, len(doc.Content))
	for i, block := range doc.Content {
		path := fmt.Sprintf("content[%d]", i)
		if !knownBlockTypes.Contains(block.Type) {
			result.Validation.addError(CodeUnknownBlockType, path,
				"unknown block type %q", block.Type)
			continue
		}
		validateVariableRefs(block, path, resolvable, &result.Validation)
		applied = append(applied, block)
	}

	if err := surface.ApplyContent(applied); err != nil {
		return ImportResult{Success: false, Validation: result.Validation.normalized()},
			fmt.Errorf("apply content: %w", err)
	}

	result.Validation = result.Validation.normalized()
	return result, nil
}

// ImportRaw decodes a wire payload and imports it. A decode failure maps
// to success:false with one schema error; the surface and stores are not
// touched in that case.
func ImportRaw(raw []byte, surface Surface, stores StoreActions, catalog []Variable) (ImportResult, error) {
	doc, err := snapshot.Parse(raw)
	if err != nil {
		if errors.Is(err, snapshot.ErrSchemaDecode) {
			result := ImportResult{Success: false}
			result.Validation.addError(CodeSchemaDecode, "", "%s", err.Error())
			result.Validation = result.Validation.normalized()
			return result, err
		}
		return ImportResult{Success: false, Validation: Validation{}.normalized()}, err
	}
	return Import(doc, surface, stores, catalog)
}

// validateVariableRefs records an error for every injector in the block
// whose variable id is missing from the resolvable set. The block itself
// is still applied; the reference just renders degraded until fixed.
func validateVariableRefs(block snapshot.Node, path string, resolvable workflow.Set[string], validation *Validation) {
	index := 0
	block.Walk(func(n snapshot.Node) {
		if n.Type != snapshot.NodeTypeInjector {
			return
		}
		refPath := fmt.Sprintf("%s.injector[%d]", path, index)
		index++
		id := n.VariableID()
		if id == "" {
			validation.addError(CodeUnknownVariable, refPath, "injector carries no variable id")
			return
		}
		if !resolvable.Contains(id) {
			validation.addError(CodeUnknownVariable, refPath, "unknown variable %q", id)
		}
	})
}

// resolvableVariables is the catalog plus the role-generated variables
// (ROLE.{label}.name / ROLE.{label}.email) every role contributes.
func resolvableVariables(catalog []Variable, roles []workflow.SignerRole) workflow.Set[string] {
	set := make(workflow.Set[string], len(catalog)+2*len(roles))
	for _, v := range catalog {
		set.Add(v.ID)
	}
	for _, role := range roles {
		if role.Label == "" {
			continue
		}
		set.Add(fmt.Sprintf("ROLE.%s.name", role.Label))
		set.Add(fmt.Sprintf("ROLE.%s.email", role.Label))
	}
	return set
}

// sanitizeWorkflow repairs previous-roles selections that reference roles
// at or after their owner. Per-role trigger maps are filtered against
// their owning role; global triggers have no single owner, so their
// selections are only filtered down to ids that still name a role.
func sanitizeWorkflow(config workflow.Config, roles []workflow.SignerRole) workflow.Config {
	roleIDs := make(workflow.Set[string], len(roles))
	rolesByID := make(map[string]workflow.SignerRole, len(roles))
	for _, role := range roles {
		roleIDs.Add(role.ID)
		rolesByID[role.ID] = role
	}

	sanitized := config
	sanitized.Notifications.GlobalTriggers = sanitizeTriggerMap(config.Notifications.GlobalTriggers,
		func(prev *workflow.PreviousRolesConfig) *workflow.PreviousRolesConfig {
			return dropUnknownRoles(prev, roleIDs)
		})

	if len(config.Notifications.RoleConfigs) > 0 {
		sanitized.Notifications.RoleConfigs = make([]workflow.RoleNotifyConfig, len(config.Notifications.RoleConfigs))
		for i, rc := range config.Notifications.RoleConfigs {
			owner, known := rolesByID[rc.RoleID]
			sanitized.Notifications.RoleConfigs[i] = workflow.RoleNotifyConfig{
				RoleID: rc.RoleID,
				Triggers: sanitizeTriggerMap(rc.Triggers,
					func(prev *workflow.PreviousRolesConfig) *workflow.PreviousRolesConfig {
						if !known {
							return dropUnknownRoles(prev, roleIDs)
						}
						return workflow.SanitizePreviousRoles(prev, roles, owner)
					}),
			}
		}
	}
	return sanitized
}

func sanitizeTriggerMap(triggers workflow.TriggerMap, repair func(*workflow.PreviousRolesConfig) *workflow.PreviousRolesConfig) workflow.TriggerMap {
	if triggers == nil {
		return nil
	}
	sanitized := make(workflow.TriggerMap, len(triggers))
	for kind, settings := range triggers {
		if settings == nil {
			sanitized[kind] = nil
			continue
		}
		copied := *settings
		copied.PreviousRolesConfig = repair(settings.PreviousRolesConfig)
		sanitized[kind] = &copied
	}
	return sanitized
}

func dropUnknownRoles(prev *workflow.PreviousRolesConfig, roleIDs workflow.Set[string]) *workflow.PreviousRolesConfig {
	if prev == nil {
		return nil
	}
	copied := &workflow.PreviousRolesConfig{Mode: prev.Mode}
	for _, id := range prev.SelectedRoleIDs {
		if roleIDs.Contains(id) {
			copied.SelectedRoleIDs = append(copied.SelectedRoleIDs, id)
		}
	}
	return copied
}

// ImportLatch guards against a second readiness signal re-importing over
// content the user may already be editing. An import runs at most once per
// session; a failed attempt releases the latch so an explicit retry can
// run, a successful one holds it for the session's lifetime.
type ImportLatch struct {
	mu   sync.Mutex
	done bool
}

// Run executes attempt unless a previous attempt already succeeded, in
// which case it is a no-op returning nil. The latch only engages on
// success.
func (l *ImportLatch) Run(attempt func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return nil
	}
	if err := attempt(); err != nil {
		return err
	}
	l.done = true
	return nil
}

// Imported reports whether a successful import has happened.
func (l *ImportLatch) Imported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
