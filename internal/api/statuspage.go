// SPDX-License-Identifier: MIT

package api

import (
	"html/template"
	"net/http"
	"time"

	"github.com/cyphersol/licensed/internal/session"
)

// The status page is the one non-JSON endpoint: a self-contained HTML table
// of every session with a client-side search filter, for operators without
// tooling on the LAN.
var statusPageTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>License Sessions</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem; background: #f7f7f8; }
  h1 { font-size: 1.3rem; }
  .summary { color: #555; margin-bottom: 1rem; }
  input[type=search] { padding: .45rem .6rem; width: 20rem; margin-bottom: 1rem;
    border: 1px solid #ccc; border-radius: 4px; }
  table { border-collapse: collapse; width: 100%; background: #fff; }
  th, td { padding: .5rem .7rem; border-bottom: 1px solid #e3e3e6; text-align: left;
    font-size: .85rem; }
  th { background: #eef0f3; }
  tr.active td:first-child { border-left: 3px solid #2e9e44; }
  tr.inactive td:first-child { border-left: 3px solid #c6c8cc; }
  .mono { font-family: ui-monospace, monospace; font-size: .8rem; }
</style>
</head>
<body>
<h1>License Sessions</h1>
<p class="summary">{{.ActiveCount}} active / {{.Total}} assigned of {{.Capacity}} seats</p>
<input type="search" id="filter" placeholder="Filter by host, user, client&hellip;" autofocus>
<table id="sessions">
<thead>
<tr><th>Session Key</th><th>Client</th><th>Hostname</th><th>User</th><th>MAC</th><th>Assigned</th><th>Heartbeat</th><th>State</th></tr>
</thead>
<tbody>
{{range .Sessions}}<tr class="{{if .Active}}active{{else}}inactive{{end}}">
<td class="mono">{{.Key}}</td>
<td>{{.ClientID}}</td>
<td>{{.Hostname}}</td>
<td>{{.Username}}</td>
<td class="mono">{{.MACAddress}}</td>
<td>{{.AssignedAt.Format "2006-01-02 15:04:05"}}</td>
<td>{{if .LastHeartbeat}}{{.LastHeartbeat.Format "15:04:05"}}{{else}}&mdash;{{end}}</td>
<td>{{if .Active}}active{{else}}inactive{{end}}</td>
</tr>
{{end}}</tbody>
</table>
<script>
document.getElementById('filter').addEventListener('input', function () {
  var q = this.value.toLowerCase();
  document.querySelectorAll('#sessions tbody tr').forEach(function (row) {
    row.style.display = row.textContent.toLowerCase().indexOf(q) === -1 ? 'none' : '';
  });
});
</script>
</body>
</html>
`))

type statusPageData struct {
	Sessions    []session.Session
	Total       int
	ActiveCount int64
	Capacity    int
	Rendered    time.Time
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	data := statusPageData{
		Sessions:    s.deps.Pool.Sessions(),
		Total:       s.deps.Pool.Count(),
		ActiveCount: s.deps.Pool.ActiveCount(),
		Capacity:    s.deps.Store.Snapshot().NumberOfUsers,
		Rendered:    time.Now(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPageTmpl.Execute(w, data); err != nil {
		s.logger.Error().
			Err(err).
			Str("event", "api.statuspage_failed").
			Msg("status page render failed")
	}
}
