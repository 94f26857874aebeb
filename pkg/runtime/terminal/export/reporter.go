package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
)

type TableConfig struct {
	IDWidth       int
	SeverityWidth int
	ScoreWidth    int
	StatusWidth   int
	TitleWidth    int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		IDWidth:       36,
		SeverityWidth: 8,
		ScoreWidth:    5,
		StatusWidth:   10,
		TitleWidth:    48,
	}
}

type Reporter struct {
	writer    io.Writer
	config    TableConfig
	templates *template.Template
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	r := &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
	r.templates = template.Must(template.New("reports").Funcs(r.funcs()).Parse(templates))
	return r
}

func (r *Reporter) funcs() template.FuncMap {
	cfg := r.config
	return template.FuncMap{
		"findingRow": func(id, severity string, score int, status, title string) string {
			return fmt.Sprintf("| %-*s | %-*s | %*d | %-*s | %-*s |",
				cfg.IDWidth, truncate(id, cfg.IDWidth),
				cfg.SeverityWidth, severity,
				cfg.ScoreWidth, score,
				cfg.StatusWidth, status,
				cfg.TitleWidth, truncate(title, cfg.TitleWidth))
		},
		"findingHeader": func() string {
			return fmt.Sprintf("| %-*s | %-*s | %*s | %-*s | %-*s |",
				cfg.IDWidth, "ID",
				cfg.SeverityWidth, "SEVERITY",
				cfg.ScoreWidth, "SCORE",
				cfg.StatusWidth, "STATUS",
				cfg.TitleWidth, "TITLE")
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+%s+",
				strings.Repeat("-", cfg.IDWidth+2),
				strings.Repeat("-", cfg.SeverityWidth+2),
				strings.Repeat("-", cfg.ScoreWidth+2),
				strings.Repeat("-", cfg.StatusWidth+2),
				strings.Repeat("-", cfg.TitleWidth+2))
		},
		"ms":         func(d time.Duration) int64 { return d.Milliseconds() },
		"severities": domain.AllSeverities,
		"count": func(counts map[domain.Severity]int, s domain.Severity) int {
			return counts[s]
		},
	}
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width-1] + "~"
}

const templates = `
{{define "scan"}}Full scan {{.StartedAt.Format "2006-01-02 15:04:05"}} to {{.FinishedAt.Format "2006-01-02 15:04:05"}}
{{range .Accounts}}{{template "account" .}}{{else}}No active accounts.
{{end}}{{end}}

{{define "account"}}- {{.AccountID}} ({{.Provider}}): {{.Outcome}}, {{.Resources}} resources, {{.Failed}} failed, {{ms .Took}}ms{{if .Error}}
  error: {{.Error}}{{end}}
{{end}}

{{define "findings"}}{{separator}}
{{findingHeader}}
{{separator}}
{{range .Items}}{{findingRow .ID (print .Severity) .RiskScore (print .Status) .Title}}
{{end}}{{separator}}
{{len .Items}} of {{.Total}} findings
{{end}}

{{define "stats"}}Open findings: {{.Total}}
{{$counts := .BySeverity}}{{range severities}}  {{printf "%-8s" (print .)}} {{count $counts .}}
{{end}}{{end}}

{{define "accounts"}}{{range .}}- {{.ID}} {{.Name}} [{{.Provider}} {{.ExternalID}}] tenant={{.TenantID}}{{if not .Active}} inactive{{end}}{{if .LastError}} error="{{.LastError}}"{{end}}
{{else}}No accounts.
{{end}}{{end}}

{{define "controls"}}{{range .}}{{.ID}}  {{printf "%-8s" (print .BaseSeverity)}} {{.Name}}
{{end}}{{end}}
`

func (r *Reporter) render(name string, data any) error {
	if err := r.templates.ExecuteTemplate(r.writer, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

func (r *Reporter) Scan(summary scanner.Summary) error {
	return r.render("scan", summary)
}

func (r *Reporter) AccountScan(result scanner.AccountResult) error {
	return r.render("account", result)
}

func (r *Reporter) Findings(page domain.FindingPage) error {
	return r.render("findings", page)
}

func (r *Reporter) Statistics(stats domain.FindingStatistics) error {
	return r.render("stats", stats)
}

func (r *Reporter) Accounts(accounts []domain.CloudAccount) error {
	return r.render("accounts", accounts)
}

func (r *Reporter) Controls(controls []domain.Control) error {
	return r.render("controls", controls)
}
