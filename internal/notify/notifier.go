package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/horiens/restock/internal/forecast"
	"github.com/horiens/restock/internal/templates"
)

// Notifier delivers a rendered message to a chat channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// DefaultMessageTemplate renders the cycle summary when the operator has not
// configured one. It leads with the actionable SKUs, most urgent first.
const DefaultMessageTemplate = `Replenishment report {{ .GeneratedAt.Format "2006-01-02 15:04" }} UTC
{{- if .Actionable }}
{{- range .Actionable }}
{{ .SKU }}: order {{ .RecommendedOrderQty }} ({{ if .DaysOfCover.Ample }}ample cover{{ else }}{{ printf "%.1f" .DaysOfCover }}d cover{{ end }}, {{ .Urgency }} urgency, {{ .Confidence }} confidence)
{{- end }}
{{- else }}
No SKUs need reordering.
{{- end }}
{{- if .Failed }}
Failed: {{ join ", " .Failed }}
{{- end }}`

// messageData is the template context for a report message.
type messageData struct {
	GeneratedAt time.Time
	Actionable  []forecast.Result
	Failed      []string
}

// Composer turns a report into the outgoing chat message.
type Composer struct {
	tmpl *templates.Template
}

// NewComposer compiles the configured message template, falling back to the
// default when the source is empty.
func NewComposer(renderer *templates.Renderer, source string) (*Composer, error) {
	if strings.TrimSpace(source) == "" {
		source = DefaultMessageTemplate
	}
	tmpl, err := renderer.CompileInline("report_message", source)
	if err != nil {
		return nil, fmt.Errorf("notify: message template: %w", err)
	}
	return &Composer{tmpl: tmpl}, nil
}

// Compose renders the report into the message body.
func (c *Composer) Compose(report forecast.Report) (string, error) {
	return c.tmpl.Render(messageData{
		GeneratedAt: report.GeneratedAt,
		Actionable:  report.Actionable(),
		Failed:      report.Failed,
	})
}
