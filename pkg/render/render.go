// Package render turns host status snapshots into the table-body markup
// written into the widget's mount point.
//
// There are three render states: a loading placeholder, an error
// placeholder carrying the failure message, and the host rows (or a
// single "no data" placeholder when the list is empty). Each state
// replaces the mount point contents in full.
package render

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/kylerisse/hostboard/pkg/hoststatus"
)

// Columns is the number of columns in the host table.
const Columns = 5

// Badge classes for the status column.
const (
	BadgeSuccess = "bg-success"
	BadgeDanger  = "bg-danger"
)

// Labels holds the user-visible placeholder texts.
type Labels struct {
	Loading     string `yaml:"loading"`
	NoData      string `yaml:"no_data"`
	ErrorPrefix string `yaml:"error_prefix"`
}

// DefaultLabels returns the labels used by the stock dashboard.
func DefaultLabels() Labels {
	return Labels{
		Loading:     "加载中...",
		NoData:      "暂无数据",
		ErrorPrefix: "加载失败: ",
	}
}

const tableTemplates = `
{{- define "loading" -}}
<tr><td colspan="{{ .Columns }}" class="loading">{{ .Labels.Loading }}</td></tr>
{{- end -}}

{{- define "error" -}}
<tr><td colspan="{{ .Columns }}" class="text-danger">{{ .Labels.ErrorPrefix }}{{ .Message }}</td></tr>
{{- end -}}

{{- define "empty" -}}
<tr><td colspan="{{ .Columns }}" class="text-muted text-center">{{ .Labels.NoData }}</td></tr>
{{- end -}}

{{- define "hosts" -}}
{{- range .Hosts }}
<tr>
<td>{{ .IPAddress }}</td>
<td><span class="badge {{ ternary "` + BadgeSuccess + `" "` + BadgeDanger + `" .Online }}">{{ .StatusText }}</span></td>
<td>{{ percent .DisplayCPU }}</td>
<td>{{ percent .DisplayMemory }}</td>
<td>{{ .DisplayTimestamp }}</td>
</tr>
{{- end }}
{{- end -}}
`

// Renderer renders the widget states. It is safe for concurrent use.
type Renderer struct {
	labels Labels
	tmpl   *template.Template
}

type view struct {
	Columns int
	Labels  Labels
	Message string
	Hosts   []hoststatus.Record
}

// New creates a Renderer. Empty labels fall back to DefaultLabels.
func New(labels Labels) (*Renderer, error) {
	def := DefaultLabels()
	if labels.Loading == "" {
		labels.Loading = def.Loading
	}
	if labels.NoData == "" {
		labels.NoData = def.NoData
	}
	if labels.ErrorPrefix == "" {
		labels.ErrorPrefix = def.ErrorPrefix
	}

	funcs := sprig.FuncMap()
	funcs["percent"] = formatPercent

	tmpl, err := template.New("table").Funcs(funcs).Parse(tableTemplates)
	if err != nil {
		return nil, fmt.Errorf("could not parse table templates: %w", err)
	}

	return &Renderer{labels: labels, tmpl: tmpl}, nil
}

// Labels returns the labels in use.
func (r *Renderer) Labels() Labels {
	return r.labels
}

// Loading renders the loading placeholder row.
func (r *Renderer) Loading() (string, error) {
	return r.execute("loading", view{})
}

// Error renders the error placeholder row with the failure message.
func (r *Renderer) Error(message string) (string, error) {
	return r.execute("error", view{Message: message})
}

// Hosts renders one row per host in the order given. An empty or nil list
// renders the "no data" placeholder row instead.
func (r *Renderer) Hosts(hosts []hoststatus.Record) (string, error) {
	if len(hosts) == 0 {
		return r.execute("empty", view{})
	}
	return r.execute("hosts", view{Hosts: hosts})
}

func (r *Renderer) execute(name string, v view) (string, error) {
	v.Columns = Columns
	v.Labels = r.labels

	var sb strings.Builder
	if err := r.tmpl.ExecuteTemplate(&sb, name, v); err != nil {
		return "", fmt.Errorf("could not render %s: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// formatPercent prints a usage value in its shortest form followed by "%",
// e.g. 42 -> "42%", 42.5 -> "42.5%".
func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
