package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"parchment/api/internal/workflow"
)

// Format discriminates the wire shapes a persisted payload can have.
type Format string

const (
	// FormatNone means the payload is empty: a new document with no
	// content saved yet. Not an error.
	FormatNone Format = "none"
	// FormatBlocks is the legacy shape: a bare JSON array of content
	// nodes, persisted before pagination and workflow config existed.
	FormatBlocks Format = "blocks"
	// FormatPortable is the current structured-object shape.
	FormatPortable Format = "portable"
	// FormatUnknown is anything the codec does not recognize.
	FormatUnknown Format = "unknown"
)

// ErrSchemaDecode is returned when a payload's shape is not a recognized
// wire format. Decode failures are fatal to the import attempt that hit
// them, nothing else.
var ErrSchemaDecode = errors.New("snapshot: unrecognized content structure")

// wireDocument is the current structured-object wire shape.
type wireDocument struct {
	Version     int                   `json:"version"`
	Content     []Node                `json:"content"`
	Pagination  *PageConfig           `json:"pagination,omitempty"`
	SignerRoles []workflow.SignerRole `json:"signerRoles,omitempty"`
	OrderMode   string                `json:"orderMode,omitempty"`
	Workflow    *workflow.Config      `json:"workflow,omitempty"`
}

// DetectFormat inspects a raw payload and returns its wire format. It
// never fails: empty input is FormatNone and unrecognized shapes are
// FormatUnknown, letting the caller decide how to surface that.
func DetectFormat(raw []byte) Format {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return FormatNone
	}
	switch trimmed[0] {
	case '[':
		return FormatBlocks
	case '{':
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return FormatUnknown
		}
		if _, ok := keys["content"]; ok {
			return FormatPortable
		}
		if _, ok := keys["version"]; ok {
			return FormatPortable
		}
		return FormatUnknown
	default:
		return FormatUnknown
	}
}

// Decode converts a recognized wire payload into a canonical document.
// FormatNone decodes to (nil, nil): there is nothing to import. Both the
// legacy block-array shape and the current structured shape stay loadable
// indefinitely; anything else fails with ErrSchemaDecode.
func Decode(raw []byte, format Format) (*Document, error) {
	switch format {
	case FormatNone:
		return nil, nil
	case FormatBlocks:
		return decodeBlocks(raw)
	case FormatPortable:
		return decodePortable(raw)
	default:
		return nil, fmt.Errorf("%w: format %q", ErrSchemaDecode, format)
	}
}

// Parse detects the format of raw and decodes it in one step.
func Parse(raw []byte) (*Document, error) {
	return Decode(raw, DetectFormat(raw))
}

// Encode converts a canonical document into the current wire format. It is
// total for any valid canonical document; the only failure mode is a
// non-serializable attr value, which valid documents never carry.
func Encode(doc *Document) ([]byte, error) {
	wire := wireDocument{
		Version:     CurrentVersion,
		Content:     doc.Content,
		Pagination:  &doc.Pagination,
		SignerRoles: doc.SignerRoles,
		OrderMode:   doc.OrderMode,
		Workflow:    &doc.Workflow,
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func decodeBlocks(raw []byte) (*Document, error) {
	var content []Node
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("%w: legacy block array: %v", ErrSchemaDecode, err)
	}
	doc := &Document{Content: content}
	applyDefaults(doc)
	return doc, nil
}

func decodePortable(raw []byte) (*Document, error) {
	var wire wireDocument
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: structured document: %v", ErrSchemaDecode, err)
	}
	doc := &Document{
		Content:     wire.Content,
		SignerRoles: wire.SignerRoles,
		OrderMode:   wire.OrderMode,
	}
	if wire.Pagination != nil {
		doc.Pagination = *wire.Pagination
	}
	if wire.Workflow != nil {
		doc.Workflow = *wire.Workflow
	}
	applyDefaults(doc)
	return doc, nil
}

// applyDefaults normalizes fields that legacy payloads predate, so every
// decode path produces the same canonical shape for the same document.
func applyDefaults(doc *Document) {
	if doc.Pagination.PageSize.Width == 0 || doc.Pagination.PageSize.Height == 0 {
		doc.Pagination = DefaultPageConfig()
	}
	if doc.OrderMode == "" {
		doc.OrderMode = DefaultOrderMode
	}
	if doc.Workflow.Notifications.Scope == "" {
		doc.Workflow.Notifications.Scope = workflow.NotifyScopeGlobal
	}
}
