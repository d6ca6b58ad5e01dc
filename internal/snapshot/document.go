// Package snapshot implements the versioned, persistable representation of
// a template document: the canonical in-memory form, and a codec between
// that form and the wire payloads stored on template versions.
package snapshot

import (
	"parchment/api/internal/workflow"
)

// CurrentVersion is the wire format version stamped by Encode.
const CurrentVersion = 2

// Document is the canonical, format-agnostic representation of a template
// document: content tree, page layout, and signing configuration.
type Document struct {
	Content     []Node                `json:"content"`
	Pagination  PageConfig            `json:"pagination"`
	SignerRoles []workflow.SignerRole `json:"signerRoles"`
	OrderMode   string                `json:"orderMode"`
	Workflow    workflow.Config       `json:"workflow"`
}

// Node is one node in the content tree. Branch nodes carry children in
// Content; text leaves carry Text and optional Marks. Attrs is kept as an
// open map so unknown editor extensions survive a round trip.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a formatting mark on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node type constants for the block kinds the bridge understands. Other
// types pass through the codec untouched.
const (
	NodeTypeDoc         = "doc"
	NodeTypeParagraph   = "paragraph"
	NodeTypeHeading     = "heading"
	NodeTypeText        = "text"
	NodeTypeInjector    = "injector"
	NodeTypeSignature   = "signature"
	NodeTypePageBreak   = "pageBreak"
	NodeTypeInteractive = "interactiveField"
)

// VariableID returns the variable id referenced by an injector node, or
// empty when the node is not an injector or carries no reference.
func (n Node) VariableID() string {
	if n.Type != NodeTypeInjector || n.Attrs == nil {
		return ""
	}
	id, _ := n.Attrs["variableId"].(string)
	return id
}

// Walk visits n and every descendant in document order.
func (n Node) Walk(visit func(Node)) {
	visit(n)
	for _, child := range n.Content {
		child.Walk(visit)
	}
}

// VariableIDs collects every variable id referenced anywhere in the
// document, in document order, without duplicates.
func (d *Document) VariableIDs() []string {
	seen := make(workflow.Set[string])
	var ids []string
	for _, node := range d.Content {
		node.Walk(func(n Node) {
			id := n.VariableID()
			if id == "" || seen.Contains(id) {
				return
			}
			seen.Add(id)
			ids = append(ids, id)
		})
	}
	return ids
}

// NodesOfType collects every node of the given type, in document order.
func (d *Document) NodesOfType(nodeType string) []Node {
	var nodes []Node
	for _, node := range d.Content {
		node.Walk(func(n Node) {
			if n.Type == nodeType {
				nodes = append(nodes, n)
			}
		})
	}
	return nodes
}

// PageConfig is the page layout carried by a snapshot. Dimensions are
// pixels at 96 DPI.
type PageConfig struct {
	PageSize        PageSize `json:"pageSize"`
	Margins         Margins  `json:"margins"`
	ShowPageNumbers bool     `json:"showPageNumbers"`
	PageGap         float64  `json:"pageGap"`
}

// PageSize is the page dimensions in pixels.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Margins are the four page margins in pixels.
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// DefaultPageConfig returns US Letter at 96 DPI with one-inch margins, the
// layout applied to documents persisted before pagination was configurable.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		PageSize:        PageSize{Width: 816, Height: 1056},
		Margins:         Margins{Top: 96, Right: 96, Bottom: 96, Left: 96},
		ShowPageNumbers: true,
		PageGap:         24,
	}
}

// DefaultOrderMode is applied to documents that predate workflow config.
const DefaultOrderMode = workflow.OrderModeSequential
