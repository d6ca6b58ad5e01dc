package render

import (
	"strings"
	"testing"

	"parchment/api/internal/snapshot"
)

func textNode(text string, marks ...snapshot.Mark) snapshot.Node {
	return snapshot.Node{Type: snapshot.NodeTypeText, Text: text, Marks: marks}
}

func TestBodyHTML(t *testing.T) {
	tests := []struct {
		name     string
		content  []snapshot.Node
		vars     map[string]string
		expected string
	}{
		{
			name:     "empty document",
			content:  nil,
			expected: "",
		},
		{
			name: "simple paragraph",
			content: []snapshot.Node{
				{Type: snapshot.NodeTypeParagraph, Content: []snapshot.Node{textNode("Hello world")}},
			},
			expected: "<p>Hello world</p>",
		},
		{
			name: "heading with level",
			content: []snapshot.Node{
				{
					Type:    snapshot.NodeTypeHeading,
					Attrs:   map[string]any{"level": 2.0},
					Content: []snapshot.Node{textNode("Section Title")},
				},
			},
			expected: "<h2>Section Title</h2>",
		},
		{
			name: "bold and italic marks nest outside in",
			content: []snapshot.Node{
				{
					Type: snapshot.NodeTypeParagraph,
					Content: []snapshot.Node{
						textNode("Bold and italic",
							snapshot.Mark{Type: "bold"},
							snapshot.Mark{Type: "italic"}),
					},
				},
			},
			expected: "<strong><em>Bold and italic</em></strong>",
		},
		{
			name: "injector with resolved value",
			content: []snapshot.Node{
				{
					Type: snapshot.NodeTypeParagraph,
					Content: []snapshot.Node{
						textNode("Signed by "),
						{Type: snapshot.NodeTypeInjector, Attrs: map[string]any{"variableId": "tenant.name"}},
					},
				},
			},
			vars:     map[string]string{"tenant.name": "Ada Lovelace"},
			expected: `<span class="injected">Ada Lovelace</span>`,
		},
		{
			name: "injector without value renders placeholder",
			content: []snapshot.Node{
				{
					Type: snapshot.NodeTypeParagraph,
					Content: []snapshot.Node{
						{Type: snapshot.NodeTypeInjector, Attrs: map[string]any{"variableId": "tenant.name"}},
					},
				},
			},
			expected: `<span class="injected missing">[tenant.name]</span>`,
		},
		{
			name: "signature box carries role label",
			content: []snapshot.Node{
				{Type: snapshot.NodeTypeSignature, Attrs: map[string]any{"roleLabel": "Landlord"}},
			},
			expected: `<div class="signature-label">Landlord</div>`,
		},
		{
			name: "page break emits css break",
			content: []snapshot.Node{
				{Type: snapshot.NodeTypePageBreak},
			},
			expected: `<div class="page-break"></div>`,
		},
		{
			name: "text is html escaped",
			content: []snapshot.Node{
				{Type: snapshot.NodeTypeParagraph, Content: []snapshot.Node{textNode("<script>alert(1)</script>")}},
			},
			expected: "&lt;script&gt;alert(1)&lt;/script&gt;",
		},
		{
			name: "unknown node type renders children",
			content: []snapshot.Node{
				{Type: "customWidget", Content: []snapshot.Node{
					{Type: snapshot.NodeTypeParagraph, Content: []snapshot.Node{textNode("inner")}},
				}},
			},
			expected: "<p>inner</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &snapshot.Document{Content: tt.content}
			got := BodyHTML(doc, tt.vars)
			if tt.expected == "" {
				if got != "" {
					t.Errorf("expected empty output, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.expected) {
				t.Errorf("expected output to contain %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDocumentHTMLPageRule(t *testing.T) {
	doc := &snapshot.Document{
		Content: []snapshot.Node{
			{Type: snapshot.NodeTypeParagraph, Content: []snapshot.Node{textNode("Body")}},
		},
		Pagination: snapshot.DefaultPageConfig(),
	}

	page, err := DocumentHTML(doc, Options{Title: "Lease Agreement"})
	if err != nil {
		t.Fatalf("DocumentHTML() error = %v", err)
	}

	for _, want := range []string{
		"<title>Lease Agreement</title>",
		"size: 816px 1056px;",
		"margin: 96px 96px 96px 96px;",
		"<p>Body</p>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Lease Agreement", "Lease-Agreement"},
		{"NDA (v2) / Final!", "NDA-v2--Final"},
		{"", "document"},
		{"###", "document"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("unexpected encoding: %q", got)
	}
}
