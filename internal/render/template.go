package render

import (
	"bytes"
	"html/template"
	"strconv"

	"parchment/api/internal/snapshot"
)

type pageData struct {
	Title       string
	BodyHTML    string
	Page        snapshot.PageConfig
	ShowNumbers bool
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
	"px":       func(v float64) template.CSS { return template.CSS(formatPx(v)) },
}).Parse(pageTemplateText))

// renderPage wraps rendered body HTML in the printable page shell.
func renderPage(data pageData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pageTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    @page {
      size: {{px .Page.PageSize.Width}} {{px .Page.PageSize.Height}};
      margin: {{px .Page.Margins.Top}} {{px .Page.Margins.Right}} {{px .Page.Margins.Bottom}} {{px .Page.Margins.Left}};
    }
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.5; margin: 0; }
    h1, h2, h3 { line-height: 1.25; }
    .page-break { page-break-after: always; }
    .injected { background: #eef6ff; }
    .injected.missing { background: #fff3cd; color: #856404; }
    .signature-box { margin: 2rem 0 1rem; width: 260px; }
    .signature-line { border-bottom: 1px solid #333; height: 2.5rem; }
    .signature-label { color: #666; font-size: 0.85em; padding-top: 0.25rem; }
    .interactive-field { display: inline-block; min-width: 120px; border-bottom: 1px solid #999; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #ccc; padding: 0.35rem 0.5rem; text-align: left; }
    blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; color: #555; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; }
  </style>
</head>
<body>
{{.BodyHTML | safeHTML}}
</body>
</html>`

func formatPx(v float64) string {
	if v <= 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}
