package proof

import (
	"bytes"
	"fmt"
	"html/template"
)

var htmlTemplate = template.Must(template.New("proof").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>GDPR Consent Record - {{.DocumentID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; line-height: 1.6; color: #333; }
.header { text-align: center; border-bottom: 2px solid #0073aa; padding-bottom: 20px; margin-bottom: 30px; }
.title { font-size: 24px; font-weight: bold; color: #0073aa; }
.subtitle { color: #666; font-size: 14px; }
.notice { background: #fff3cd; border: 1px solid #ffeaa7; padding: 12px; margin-bottom: 25px; }
.section { margin-bottom: 25px; page-break-inside: avoid; }
.section h2 { color: #0073aa; border-bottom: 1px solid #ddd; padding-bottom: 5px; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 10px; text-align: left; vertical-align: top; }
th { background: #f8f9fa; width: 30%; }
.mono { font-family: monospace; word-break: break-all; }
.note { font-size: 12px; color: #666; }
.footer { text-align: center; font-size: 12px; color: #666; margin-top: 30px; }
</style>
</head>
<body>
<div class="header">
<div class="title">{{.Title}}</div>
<div class="subtitle">{{.Subtitle}}</div>
</div>
<div class="notice">{{.Notice}}</div>
{{range .Sections}}<div class="section">
<h2>{{.Title}}</h2>
{{if .Fields}}<table>
{{range .Fields}}<tr><th>{{.Label}}</th><td{{if .Mono}} class="mono"{{end}}>{{.Value}}</td></tr>
{{end}}</table>
{{end}}{{if .Note}}<p class="note">{{.Note}}</p>
{{end}}</div>
{{end}}<div class="footer">
{{range $i, $line := .Footer}}<p>{{if eq $i 0}}<strong>{{$line}}</strong>{{else}}{{$line}}{{end}}</p>
{{end}}</div>
</body>
</html>
`))

func renderHTML(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, m); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	return buf.Bytes(), nil
}
