package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gate-opener/internal/status"
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
	"stateClass": func(s string) string {
		switch s {
		case "OPEN", "CLOSED":
			return "resting"
		case "OPENING", "CLOSING":
			return "moving"
		case "STOPPED":
			return "stopped"
		}
		return "unknown"
	},
	"sensor": func(configured, mock bool) string {
		if configured {
			return "configured"
		}
		if mock {
			return "mocked (triggered)"
		}
		return "mocked"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>{{.Config.Name}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.resting { color: green; font-weight: bold; }
.moving { color: orange; font-weight: bold; }
.stopped { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.Name}}</h1>

<h2>State</h2>
<table>
<tr><th>Current</th><td id="state" class="{{stateClass .StateName}}">{{.StateName}}</td></tr>
<tr><th>Target</th><td id="target">{{.TargetName}}</td></tr>
<tr><th>Operating</th><td>{{if .Door.Operating}}yes{{else}}no{{end}}</td></tr>
<tr><th>Open sensor</th><td>{{sensor .Door.HasOpen .Door.MockedOpen}}</td></tr>
<tr><th>Closed sensor</th><td>{{sensor .Door.HasClosed .Door.MockedClosed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topics</th><td>{{.Config.TopicPrefix}}/#</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Opened</th><td>{{.Door.Counts.Opened}}</td></tr>
<tr><th>Closed</th><td>{{.Door.Counts.Closed}}</td></tr>
<tr><th>Stopped</th><td>{{.Door.Counts.Stopped}}</td></tr>
<tr><th>Relay pulses</th><td>{{.Door.Counts.RelayPulses}}</td></tr>
<tr><th>Timeouts</th><td>{{.Door.Counts.Timeouts}}</td></tr>
<tr><th>Rejected commands</th><td>{{.Door.Counts.Rejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Relay press</th><td>{{.Config.PressMs}}ms</td></tr>
<tr><th>Travel time</th><td>{{.Config.OpensInSeconds}}s</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has an Uptime() method but the template needs a field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
