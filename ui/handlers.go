package main

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/base"
)

const baseTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>Process queues</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
pre { background: #f6f6f6; padding: 1em; }
</style>
</head>
<body>
<p><a href="/">Dashboard</a> | <a href="/metrics">Metrics</a></p>
{{template "content" .}}
</body>
</html>
`

const dashboardTemplate = `{{define "content"}}
<h1>Process queues</h1>
<p>{{.Stats.TotalQueues}} queues ({{.Stats.EnabledQueues}} enabled) in {{.Stats.Processes}} processes.
{{.Stats.TotalQueued}} items queued, {{.Stats.ItemsBeingProcessed}} being processed.</p>
<table>
<tr><th>Queue</th><th>Host</th><th>PID</th><th>Mode</th><th>State</th><th>Queued</th><th>In flight</th><th>Processed</th><th>Failed</th><th>Timed out</th><th>Published</th></tr>
{{range .Queues}}
<tr>
<td><a href="/queues/{{.Host}}/{{.PID}}/{{.Name}}">{{.Name}}</a></td>
<td>{{.Host}}</td><td>{{.PID}}</td><td>{{.Mode}}</td>
<td>{{if .Enabled}}enabled{{else}}disabled{{end}}</td>
<td>{{.QueueCount}}</td><td>{{.ItemsBeingProcessed}}</td>
<td>{{.TotalProcessed}}</td><td>{{.TotalFailed}}</td><td>{{.TotalTimedOut}}</td>
<td>{{age .}} ago</td>
</tr>
{{else}}
<tr><td colspan="11">No queues are published.</td></tr>
{{end}}
</table>
{{end}}`

const queueTemplate = `{{define "content"}}
<h1>{{.Queue.Name}} on {{.Queue.Host}} (pid {{.Queue.PID}})</h1>
<pre>{{.Status}}</pre>
<p>Published {{age .Queue}} ago.</p>
{{end}}`

// Handler handles HTTP requests for the UI.
type Handler struct {
	inspector *Inspector
	refresh   int
	templates map[string]*template.Template
}

// NewHandler creates a new Handler. Pages reload every refresh seconds.
func NewHandler(inspector *Inspector, refresh int) (*Handler, error) {
	funcMap := template.FuncMap{
		"age": func(info *base.QueueInfo) string { return inspector.Age(info).String() },
	}

	pages := map[string]string{
		"dashboard": dashboardTemplate,
		"queue":     queueTemplate,
	}
	templates := make(map[string]*template.Template)
	for name, page := range pages {
		tmpl, err := template.New("base").Funcs(funcMap).Parse(baseTemplate)
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.Parse(page); err != nil {
			return nil, err
		}
		templates[name] = tmpl
	}

	return &Handler{
		inspector: inspector,
		refresh:   refresh,
		templates: templates,
	}, nil
}

// RegisterRoutes registers HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleDashboard)
	mux.HandleFunc("GET /queues/{host}/{pid}/{name}", h.handleQueue)
	mux.HandleFunc("GET /api/queues", h.handleAPIQueues)
	mux.HandleFunc("GET /api/stats", h.handleAPIStats)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inspector.Dashboard(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	queues, err := h.inspector.Queues(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Stats":   stats,
		"Queues":  queues,
		"Refresh": h.refresh,
	}
	h.render(w, "dashboard", data)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(r.PathValue("pid"))
	if err != nil {
		http.Error(w, "invalid pid", http.StatusBadRequest)
		return
	}
	info, err := h.inspector.Queue(r.Context(), r.PathValue("host"), pid, r.PathValue("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if info == nil {
		http.NotFound(w, r)
		return
	}

	data := map[string]interface{}{
		"Queue":   info,
		"Status":  toStatistics(info).String(),
		"Refresh": h.refresh,
	}
	h.render(w, "queue", data)
}

func (h *Handler) handleAPIQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.inspector.Queues(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if queues == nil {
		queues = []*base.QueueInfo{}
	}
	writeJSON(w, queues)
}

func (h *Handler) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inspector.Dashboard(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl, ok := h.templates[name]
	if !ok {
		http.Error(w, "Template not found: "+name, http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
