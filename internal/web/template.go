package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"statusClass": func(s logic.Status) string {
		return strings.ToLower(string(s))
	},
	"deref": func(b *bool) bool {
		return b != nil && *b
	},
	"since": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Garage Door</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.closed { color: green; font-weight: bold; }
.open { color: red; font-weight: bold; }
.opening, .closing { color: orange; }
.stopped, .unknown { color: #888; }
.fault { color: white; background: red; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Garage Door<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

{{range .Doors}}
<h2>{{.Info.Name}}</h2>
<table>
<tr><th>Status</th><td id="status-{{.Info.ID}}" class="{{statusClass .Status}}">{{.Status}}{{if .Assumed}} (assumed){{end}}</td></tr>
<tr><th>Last confirmed</th><td>{{.LastStatus}}</td></tr>
<tr><th>Since</th><td id="since-{{.Info.ID}}">{{since .Since}}</td></tr>
{{if .Info.ObstructionSensor}}<tr><th>Obstruction</th><td id="obstruction-{{.Info.ID}}">{{if .Obstructed}}{{if deref .Obstructed}}obstructed{{else}}clear{{end}}{{else}}-{{end}}</td></tr>{{end}}
<tr><th>Events</th><td>opened {{.Counts.Opened}}, closed {{.Counts.Closed}}, faults {{.Counts.Faults}}, fallbacks {{.Counts.Fallbacks}}</td></tr>
</table>
{{if and $.Control .Info.Button}}
<p><button onclick="command('{{.Info.ID}}','OPEN')">Open</button> <button onclick="command('{{.Info.ID}}','CLOSE')">Close</button></p>
{{end}}
{{else}}
<p>No doors configured.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>HomeKit</th><td>{{if .Config.HomeKit}}enabled{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Button dwell</th><td>{{.Config.DwellMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/history.json">History</a></p>
<script>
var ws;
function command(door, target) {
  fetch("/doors/" + encodeURIComponent(door) + "/" + target, { method: "POST" });
}
(function connect() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) { dot.className = "live-dot " + cls; dot.title = title; }
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  ws = new WebSocket(proto + location.host + "/ws");
  ws.onopen = function() { setDot("ok", "live"); };
  ws.onclose = function() { setDot("err", "offline"); setTimeout(connect, 5000); };
  ws.onmessage = function(m) {
    try {
      var ev = JSON.parse(m.data);
      if (!ev.door || !ev.event) { return; }
      if (ev.event === "OBSTRUCTION" || ev.event === "CLEAR") {
        var ob = document.getElementById("obstruction-" + ev.door);
        if (ob) { ob.textContent = ev.event === "OBSTRUCTION" ? "obstructed" : "clear"; }
        return;
      }
      var el = document.getElementById("status-" + ev.door);
      if (el) {
        el.textContent = ev.status + (ev.assumed ? " (assumed)" : "");
        el.className = ev.status.toLowerCase();
      }
    } catch (e) {}
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, control bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Control bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Control:  control,
	}
	return indexTmpl.Execute(w, data)
}
