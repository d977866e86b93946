package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/feeder/internal/status"
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
	"clock": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Feeder</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
textarea { width: 100%; height: 8em; font-family: monospace; }
button { margin: 0.2em 0.4em 0.2em 0; }
</style>
</head>
<body>
<h1>Feeder</h1>

<h2>State</h2>
<table>
<tr><th>Power</th><td>{{.State}}</td></tr>
<tr><th>Woke by</th><td>{{.WakeCause}}</td></tr>
<tr><th>Relay</th><td id="relay" class="{{if .RelayErr}}warn{{else if .Energized}}on{{else}}off{{end}}">{{if .Manual}}ON (manual){{else if .Energized}}FEEDING{{else}}OFF{{end}}{{with .RelayErr}} (fault: {{.}}){{end}}</td></tr>
<tr><th>Auto-sleep in</th><td id="remaining">{{.IdleRemaining}}s</td></tr>
<tr><th>Feeds this session</th><td>{{.FeedCount}}</td></tr>
{{with .LastFeed}}<tr><th>Last feed</th><td>{{.Trigger}} at {{clock .StartedAt}}{{if .Forced}} (cut short){{end}}</td></tr>{{end}}
</table>

<h2>Clock</h2>
<table>
{{if .RTCError}}<tr><th>RTC</th><td class="warn">degraded: {{.RTCError}}</td></tr>{{else}}<tr><th>RTC time</th><td id="rtc-time">{{clock .RTCTime}}</td></tr>{{end}}
<tr><th>Next feed</th><td>{{with .NextAlert}}{{clock .At}} (timer {{.Timer}}){{else}}none{{end}}</td></tr>
<tr><th>Alarm armed</th><td>{{with .Armed}}{{clock .At}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Control</h2>
<p>
<button onclick="post('/feed/cycle')">Feed now</button>
<button onclick="post('/feed', {on: true})">Relay on</button>
<button onclick="post('/feed', {on: false})">Relay off</button>
<button onclick="post('/sleep')">Sleep</button>
</p>

<h2>Schedule</h2>
<textarea id="timers"></textarea>
<p><button onclick="saveTimers()">Save schedule</button> <span id="msg"></span></p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{with .Network}}<tr><th>Access point</th><td>{{.SSID}} ({{.Mode}})</td></tr>
<tr><th>Address</th><td>{{.Address}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Store</th><td>{{.Config.Store}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/status.json">JSON</a> · <a href="/metrics">metrics</a></p>
<script>
(function() {
  var msg = document.getElementById("msg");
  var timers = document.getElementById("timers");

  window.post = function(path, body) {
    return fetch(path, {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: body ? JSON.stringify(body) : "{}"
    }).then(function(r) { return r.json(); }).then(function(j) {
      msg.textContent = j.error ? j.error : "ok";
    });
  };

  window.saveTimers = function() {
    fetch("/set", {method: "POST", body: timers.value})
      .then(function(r) { return r.json(); })
      .then(function(j) { msg.textContent = j.error ? j.error : "saved"; });
  };

  fetch("/get").then(function(r) { return r.json(); }).then(function(j) {
    timers.value = JSON.stringify(j, null, 2);
  });

  setInterval(function() {
    fetch("/autosleep").then(function(r) { return r.json(); }).then(function(j) {
      document.getElementById("remaining").textContent = j.remaining + "s";
    });
  }, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
