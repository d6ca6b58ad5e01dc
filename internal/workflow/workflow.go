// Package workflow holds the signer-workflow data model shared by the
// snapshot codec, the content importer/exporter and the notification
// dispatcher: signer roles, signing order, and notification triggers.
package workflow

// SignerRole defines a named signing party with a position in the order.
type SignerRole struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Name  FieldValue `json:"name,omitempty"`
	Email FieldValue `json:"email,omitempty"`
	Order int        `json:"order"`
}

// FieldValue is a role field that is either literal text or a reference to
// a variable resolved at generation time.
type FieldValue struct {
	Type  string `json:"type,omitempty"`  // "text" | "injectable"
	Value string `json:"value,omitempty"` // literal text or variable id
}

// Field type constants.
const (
	FieldTypeText       = "text"
	FieldTypeInjectable = "injectable"
)

// IsText reports whether the field holds literal text.
func (f FieldValue) IsText() bool { return f.Type == FieldTypeText }

// IsInjectable reports whether the field references a variable.
func (f FieldValue) IsInjectable() bool { return f.Type == FieldTypeInjectable }

// IsEmpty reports whether the field carries no value.
func (f FieldValue) IsEmpty() bool { return f.Value == "" }

// Config is the signing workflow configuration carried by a snapshot.
type Config struct {
	Notifications NotificationConfig `json:"notifications"`
}

// NotificationConfig defines how signing notifications are configured.
type NotificationConfig struct {
	Scope          string             `json:"scope"` // "global" | "individual"
	GlobalTriggers TriggerMap         `json:"globalTriggers,omitempty"`
	RoleConfigs    []RoleNotifyConfig `json:"roleConfigs,omitempty"`
}

// TriggerMap maps trigger kinds to their settings.
type TriggerMap map[string]*TriggerSettings

// TriggerSettings holds the persisted state of one notification trigger.
// Enabled is preserved even while the trigger is hidden by the current
// order mode, so switching modes back restores the prior configuration.
type TriggerSettings struct {
	Enabled             bool                 `json:"enabled"`
	PreviousRolesConfig *PreviousRolesConfig `json:"previousRolesConfig,omitempty"`
}

// PreviousRolesConfig selects which earlier roles gate a trigger.
type PreviousRolesConfig struct {
	Mode            string   `json:"mode"` // "auto" | "custom"
	SelectedRoleIDs []string `json:"selectedRoleIds,omitempty"`
}

// RoleNotifyConfig is the per-role trigger map under individual scope.
type RoleNotifyConfig struct {
	RoleID   string     `json:"roleId"`
	Triggers TriggerMap `json:"triggers"`
}

// Order mode constants.
const (
	OrderModeParallel   = "parallel"
	OrderModeSequential = "sequential"
)

// ValidOrderModes contains allowed order modes.
var ValidOrderModes = Set[string]{
	OrderModeParallel:   {},
	OrderModeSequential: {},
}

// Notification scope constants.
const (
	NotifyScopeGlobal     = "global"
	NotifyScopeIndividual = "individual"
)

// ValidNotifyScopes contains allowed notification scopes.
var ValidNotifyScopes = Set[string]{
	NotifyScopeGlobal:     {},
	NotifyScopeIndividual: {},
}

// Trigger kind constants.
const (
	TriggerOnDocumentCreated       = "on_document_created"
	TriggerOnPreviousRolesSigned   = "on_previous_roles_signed"
	TriggerOnTurnToSign            = "on_turn_to_sign"
	TriggerOnAllSignaturesComplete = "on_all_signatures_complete"
)

// AllTriggers lists every trigger kind in display order.
var AllTriggers = []string{
	TriggerOnDocumentCreated,
	TriggerOnPreviousRolesSigned,
	TriggerOnTurnToSign,
	TriggerOnAllSignaturesComplete,
}

// SequentialOnlyTriggers are meaningful only under sequential order mode.
var SequentialOnlyTriggers = Set[string]{
	TriggerOnPreviousRolesSigned: {},
	TriggerOnTurnToSign:          {},
}

// Previous-roles mode constants.
const (
	PreviousRolesModeAuto   = "auto"
	PreviousRolesModeCustom = "custom"
)

// ValidPreviousRolesModes contains allowed previous-roles modes.
var ValidPreviousRolesModes = Set[string]{
	PreviousRolesModeAuto:   {},
	PreviousRolesModeCustom: {},
}
