// Package notify delivers operator notifications for completed contact forms.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// NotProvided is rendered for fields without a value.
const NotProvided = "(not provided)"

// Notifier tells an operator about a stored submission.
type Notifier interface {
	Notify(ctx context.Context, rec models.SubmissionRecord) error
}

// Field names one collected value and the label it is rendered with.
type Field struct {
	Name  string
	Label string
}

// Row is a rendered label/value pair.
type Row struct {
	Label string
	Value string
}

// Rows lists the configured fields of rec in order, followed by any extra keys in rec
// that are not configured, sorted by name.
func Rows(fields []Field, rec models.SubmissionRecord) []Row {
	rows := make([]Row, 0, len(fields))
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
		v := strings.TrimSpace(rec.Data[f.Name])
		if v == "" {
			v = NotProvided
		}
		label := f.Label
		if label == "" {
			label = f.Name
		}
		rows = append(rows, Row{Label: label, Value: v})
	}
	var extra []string
	for k := range rec.Data {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		rows = append(rows, Row{Label: k, Value: rec.Data[k]})
	}
	return rows
}

var htmlBody = template.Must(template.New("submission").Parse(`<html>
<body>
<h2>New Contact Form Submission</h2>
<table border="1" cellpadding="6" cellspacing="0">
{{- range .Rows}}
<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
<tr><th align="left">Submitted at</th><td>{{.SubmittedAt}}</td></tr>
{{- if .ClientIP}}
<tr><th align="left">IP Address</th><td>{{.ClientIP}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

// RenderHTML renders the e-mail body for rec. Values are HTML-escaped.
func RenderHTML(fields []Field, rec models.SubmissionRecord) (string, error) {
	var buf bytes.Buffer
	err := htmlBody.Execute(&buf, struct {
		Rows        []Row
		SubmittedAt string
		ClientIP    string
	}{
		Rows:        Rows(fields, rec),
		SubmittedAt: rec.Timestamp.Format(time.DateTime + " MST"),
		ClientIP:    rec.ClientIP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render submission body: %w", err)
	}
	return buf.String(), nil
}

// RenderText renders a plain-text summary of rec, one "Label: value" line per row.
func RenderText(fields []Field, rec models.SubmissionRecord) string {
	var b strings.Builder
	for _, r := range Rows(fields, rec) {
		fmt.Fprintf(&b, "%s: %s\n", r.Label, r.Value)
	}
	fmt.Fprintf(&b, "Submitted at: %s\n", rec.Timestamp.Format(time.DateTime+" MST"))
	if rec.ClientIP != "" {
		fmt.Fprintf(&b, "IP Address: %s\n", rec.ClientIP)
	}
	return b.String()
}
