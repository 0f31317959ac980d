package httpapi

import (
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"remindbot/internal/notifier"
)

var statusTmpl = template.Must(template.New("status").Funcs(template.FuncMap{
	"when": func(t time.Time, loc *time.Location) string {
		if t.IsZero() {
			return "-"
		}
		return notifier.FormatWhen(t, loc)
	},
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"bytes": func(n int) string { return humanize.Bytes(uint64(max(n, 0))) },
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>remindbot</title>
<style>body{font-family:sans-serif;margin:2em}td{padding:2px 12px}th{text-align:left}</style>
</head><body>
<h1>remindbot {{if .V.Healthy}}🟢{{else}}🔴{{end}}</h1>
{{with .V.Error}}<p><b>error:</b> {{.}}</p>{{end}}
<table>
<tr><th>platform</th><td>{{.V.Platform}}</td></tr>
<tr><th>started</th><td>{{when .V.StartedAt .Loc}} ({{ago .V.StartedAt .V.Now}})</td></tr>
<tr><th>pending tasks</th><td>{{.V.Store.Pending}} in {{.V.Store.Conversations}} conversations</td></tr>
<tr><th>next due</th><td>{{when .V.Store.NextDue .Loc}}</td></tr>
</table>
<h2>scheduler</h2>
<table>
<tr><th>running</th><td>{{.V.Scheduler.Running}} (every {{.V.Scheduler.Interval}})</td></tr>
<tr><th>last tick</th><td>{{ago .V.Scheduler.LastTickAt .V.Now}}</td></tr>
<tr><th>delivered / failed</th><td>{{.V.Scheduler.Delivered}} / {{.V.Scheduler.Failed}}</td></tr>
{{with .V.Scheduler.LastTickErr}}<tr><th>last tick error</th><td>{{.}}</td></tr>{{end}}
</table>
<h2>backup</h2>
{{if .V.Persist.Enabled}}<table>
<tr><th>backend</th><td>{{.V.Persist.Backend}} / {{.V.Persist.ObjectName}}</td></tr>
<tr><th>schedule</th><td>{{if .V.Persist.BackupCron}}{{.V.Persist.BackupCron}} (next {{when .V.Persist.NextBackup .Loc}}){{else}}-{{end}}</td></tr>
<tr><th>last save</th><td>{{ago .V.Persist.LastSaveAt .V.Now}}, {{bytes .V.Persist.LastBytes}}</td></tr>
<tr><th>saves / failures</th><td>{{.V.Persist.Saves}} / {{.V.Persist.SaveFailures}}</td></tr>
{{with .V.Persist.LastSaveErr}}<tr><th>last save error</th><td>{{.}}</td></tr>{{end}}
{{with .V.Persist.LastLoadErr}}<tr><th>last load error</th><td>{{.}}</td></tr>{{end}}
</table>{{else}}<p>no storage configured; tasks live in memory only</p>{{end}}
</body></html>
`))

func statusPage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := deps.Location
		if loc == nil {
			loc = time.Local
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := struct {
			V   StatusView
			Loc *time.Location
		}{view(deps), loc}
		if err := statusTmpl.Execute(w, data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
