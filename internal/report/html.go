package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	ttemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{ .Title }}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.5; max-width: 1200px; margin: 0 auto; padding: 20px; color: #24292f; }
table { border-collapse: collapse; margin: 12px 0; }
th, td { border: 1px solid #d0d7de; padding: 4px 10px; }
th { background: #f6f8fa; }
blockquote { border-left: 4px solid #d29922; margin: 0; padding: 0 12px; color: #57606a; }
</style>
</head>
<body>
{{ .Body }}
</body>
</html>
`))

// writeHTML renders the Markdown report and wraps it in a standalone page.
func writeHTML(w io.Writer, title string, t *ttemplate.Template, data any) error {
	var src bytes.Buffer
	if err := t.Execute(&src, data); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := md.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("failed to convert markdown: %w", err)
	}
	return page.Execute(w, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
}
