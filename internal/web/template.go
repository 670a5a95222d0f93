package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/status"
)

type gestureCount struct {
	Gesture logic.Gesture
	Count   int
}

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
	"gestures": func(m map[logic.Gesture]int) []gestureCount {
		out := make([]gestureCount, 0, len(m))
		for g, n := range m {
			out = append(out, gestureCount{g, n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Gesture < out[j].Gesture })
		return out
	},
	"drops": func(m map[logic.DropReason]int) int {
		n := 0
		for _, c := range m {
			n += c
		}
		return n
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Button Hub</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.full { color: green; font-weight: bold; }
.reduced { color: orange; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Button Hub</h1>

<h2>Devices</h2>
{{if .Devices}}<table>
<tr><th>Device</th><th>Profile</th><th>Buttons</th><th>Mode</th><th>Gestures</th><th>Dropped</th><th>Last</th></tr>
{{range .Devices}}<tr>
<td>{{.ID}}{{if .Model}} ({{.Manufacturer}} {{.Model}}){{end}}</td>
<td>{{.Profile}}</td>
<td>{{.ButtonCount}}</td>
<td class="{{.Mode}}">{{.Mode}}{{if .Negotiated}} / {{.ModePhase}}{{end}}</td>
<td>{{range gestures .Gestures}}{{.Gesture}}: {{.Count}} {{end}}</td>
<td>{{drops .Drops}}</td>
<td>{{with .Last}}button {{.Button}} {{.Gesture}} at {{.At.UTC.Format "15:04:05"}}{{end}}</td>
</tr>
{{end}}</table>{{else}}<p>No devices yet.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Buffered</th><td>{{.MQTTBuffered}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>GPIO</th><td>{{if .Config.GPIOPins}}pins {{.Config.GPIOPins}}, poll {{.Config.PollMs}}ms{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
