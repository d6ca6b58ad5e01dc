package render

import (
	"fmt"
	"html"
	"strings"

	"parchment/api/internal/snapshot"
)

// Options controls how a snapshot is rendered.
type Options struct {
	Title string
	// Variables maps variable ids to resolved values. Injector nodes whose
	// id is missing here render as a visible placeholder.
	Variables map[string]string
}

// DocumentHTML renders a snapshot into a standalone HTML page ready for
// PDF printing. Page dimensions from the snapshot's pagination config are
// emitted as a CSS @page rule so Chrome honors them.
func DocumentHTML(doc *snapshot.Document, opts Options) (string, error) {
	var body strings.Builder
	for _, node := range doc.Content {
		body.WriteString(renderNode(node, opts.Variables))
	}

	return renderPage(pageData{
		Title:       opts.Title,
		BodyHTML:    body.String(),
		Page:        doc.Pagination,
		ShowNumbers: doc.Pagination.ShowPageNumbers,
	})
}

// BodyHTML renders only the content tree, without the page shell.
func BodyHTML(doc *snapshot.Document, variables map[string]string) string {
	var body strings.Builder
	for _, node := range doc.Content {
		body.WriteString(renderNode(node, variables))
	}
	return body.String()
}

func renderNode(node snapshot.Node, vars map[string]string) string {
	switch node.Type {
	case snapshot.NodeTypeDoc:
		return renderChildren(node, vars)
	case snapshot.NodeTypeParagraph:
		return fmt.Sprintf("<p>%s</p>\n", renderChildren(node, vars))
	case snapshot.NodeTypeHeading:
		level := 1
		if lvl, ok := node.Attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, renderChildren(node, vars), level)
	case snapshot.NodeTypeText:
		return renderTextWithMarks(node.Text, node.Marks)
	case snapshot.NodeTypeInjector:
		return renderInjector(node, vars)
	case snapshot.NodeTypeSignature:
		return renderSignature(node)
	case snapshot.NodeTypePageBreak:
		return `<div class="page-break"></div>` + "\n"
	case snapshot.NodeTypeInteractive:
		return renderInteractiveField(node)
	case "bulletList":
		return fmt.Sprintf("<ul>\n%s</ul>\n", renderChildren(node, vars))
	case "orderedList":
		return fmt.Sprintf("<ol>\n%s</ol>\n", renderChildren(node, vars))
	case "listItem":
		return fmt.Sprintf("<li>%s</li>\n", renderChildren(node, vars))
	case "blockquote":
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", renderChildren(node, vars))
	case "codeBlock":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", renderPlainText(node))
	case "hardBreak":
		return "<br>"
	case "table":
		return fmt.Sprintf("<table>\n%s</table>\n", renderChildren(node, vars))
	case "tableRow":
		return fmt.Sprintf("<tr>\n%s</tr>\n", renderChildren(node, vars))
	case "tableCell":
		return fmt.Sprintf("<td>%s</td>\n", renderChildren(node, vars))
	case "tableHeader":
		return fmt.Sprintf("<th>%s</th>\n", renderChildren(node, vars))
	case "horizontalRule":
		return "<hr>\n"
	default:
		// Unknown node type, render children if any.
		return renderChildren(node, vars)
	}
}

func renderChildren(node snapshot.Node, vars map[string]string) string {
	var result strings.Builder
	for _, child := range node.Content {
		result.WriteString(renderNode(child, vars))
	}
	return result.String()
}

func renderPlainText(node snapshot.Node) string {
	var result strings.Builder
	node.Walk(func(n snapshot.Node) {
		if n.Type == snapshot.NodeTypeText {
			result.WriteString(html.EscapeString(n.Text))
		}
	})
	return result.String()
}

func renderInjector(node snapshot.Node, vars map[string]string) string {
	id := node.VariableID()
	if id == "" {
		return ""
	}
	if value, ok := vars[id]; ok && strings.TrimSpace(value) != "" {
		return fmt.Sprintf(`<span class="injected">%s</span>`, html.EscapeString(value))
	}
	return fmt.Sprintf(`<span class="injected missing">[%s]</span>`, html.EscapeString(id))
}

func renderSignature(node snapshot.Node) string {
	label := "Signature"
	if roleLabel, ok := node.Attrs["roleLabel"].(string); ok && roleLabel != "" {
		label = roleLabel
	}
	return fmt.Sprintf(
		"<div class=\"signature-box\"><div class=\"signature-line\"></div><div class=\"signature-label\">%s</div></div>\n",
		html.EscapeString(label))
}

func renderInteractiveField(node snapshot.Node) string {
	label, _ := node.Attrs["label"].(string)
	return fmt.Sprintf(
		`<span class="interactive-field" data-label="%s">&nbsp;</span>`,
		html.EscapeString(label))
}

func renderTextWithMarks(text string, marks []snapshot.Mark) string {
	if text == "" {
		return ""
	}

	htmlText := html.EscapeString(text)

	// Apply marks from outside in.
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			htmlText = fmt.Sprintf("<strong>%s</strong>", htmlText)
		case "italic":
			htmlText = fmt.Sprintf("<em>%s</em>", htmlText)
		case "code":
			htmlText = fmt.Sprintf("<code>%s</code>", htmlText)
		case "link":
			href := ""
			if marks[i].Attrs != nil {
				if hrefVal, ok := marks[i].Attrs["href"].(string); ok {
					href = hrefVal
				}
			}
			htmlText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), htmlText)
		case "strike":
			htmlText = fmt.Sprintf("<s>%s</s>", htmlText)
		case "underline":
			htmlText = fmt.Sprintf("<u>%s</u>", htmlText)
		}
	}

	return htmlText
}
