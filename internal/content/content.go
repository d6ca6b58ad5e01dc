// Package content bridges live editing surfaces and persisted snapshots:
// importing a decoded document onto a surface (hydrating the dependent
// config state), and exporting current live state back into a snapshot.
package content

import (
	"parchment/api/internal/snapshot"
	"parchment/api/internal/workflow"
)

// Surface is the live editing surface capability the bridge works against.
// The real surface lives in the web editor; server-side sessions hold a
// buffered implementation that the editor synchronizes with.
type Surface interface {
	// GetContent reads the current content as a block sequence.
	GetContent() []snapshot.Node
	// ApplyContent replaces the surface content in one transaction.
	ApplyContent(blocks []snapshot.Node) error
}

// StoreActions receives the structural metadata carried by an imported
// document. Passed explicitly at import time rather than reached through
// shared state.
type StoreActions interface {
	SetPaginationConfig(config snapshot.PageConfig)
	SetSignerRoles(roles []workflow.SignerRole)
	SetWorkflowConfig(orderMode string, config workflow.Config)
}

// StoreReader is the read side used by the exporter.
type StoreReader interface {
	PaginationConfig() snapshot.PageConfig
	SignerRoles() []workflow.SignerRole
	WorkflowConfig() (orderMode string, config workflow.Config)
}

// Variable is one entry of the externally supplied variable catalog.
type Variable struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// knownBlockTypes are the block kinds the importer accepts. Anything else
// is recorded as a validation error and dropped from the applied content.
var knownBlockTypes = workflow.Set[string]{
	snapshot.NodeTypeParagraph:   {},
	snapshot.NodeTypeHeading:     {},
	snapshot.NodeTypeText:        {},
	snapshot.NodeTypeInjector:    {},
	snapshot.NodeTypeSignature:   {},
	snapshot.NodeTypePageBreak:   {},
	snapshot.NodeTypeInteractive: {},
	"bulletList":                 {},
	"orderedList":                {},
	"listItem":                   {},
	"blockquote":                 {},
	"codeBlock":                  {},
	"hardBreak":                  {},
	"table":                      {},
	"tableRow":                   {},
	"tableCell":                  {},
	"tableHeader":                {},
	"horizontalRule":             {},
}
