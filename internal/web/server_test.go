package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/rtc"
	"github.com/sweeney/feeder/internal/session"
	"github.com/sweeney/feeder/internal/status"
)

// fakeCore is a scripted Core.
type fakeCore struct {
	mu sync.Mutex

	touches   int
	schedule  []byte
	setDocs   [][]byte
	setErr    error
	system    config.SystemConfig
	systemErr error
	now       session.Time
	timeErr   error
	remaining int
	manual    []bool
	manualErr error
	feeds     int
	feedErr   error
	sleeps    int
	snap      status.Snapshot
}

func (f *fakeCore) with(fn func(c *fakeCore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeCore) Touch() {
	f.with(func(c *fakeCore) { c.touches++ })
}

func (f *fakeCore) Schedule() (data []byte, err error) {
	f.with(func(c *fakeCore) {
		c.touches++
		data = c.schedule
	})
	return data, nil
}

func (f *fakeCore) SetSchedule(_ context.Context, doc []byte) (err error) {
	f.with(func(c *fakeCore) {
		if err = c.setErr; err == nil {
			c.setDocs = append(c.setDocs, doc)
		}
	})
	return err
}

func (f *fakeCore) System() (sys config.SystemConfig) {
	f.with(func(c *fakeCore) { sys = c.system })
	return sys
}

func (f *fakeCore) SetSystem(_ context.Context, doc []byte) (err error) {
	f.with(func(c *fakeCore) {
		if err = c.systemErr; err == nil {
			err = json.Unmarshal(doc, &c.system)
		}
	})
	return err
}

func (f *fakeCore) Time() (t session.Time, err error) {
	f.with(func(c *fakeCore) { t, err = c.now, c.timeErr })
	return t, err
}

func (f *fakeCore) RemainingIdle() (n int) {
	f.with(func(c *fakeCore) { n = c.remaining })
	return n
}

func (f *fakeCore) ManualFeed(_ context.Context, on bool) (err error) {
	f.with(func(c *fakeCore) {
		if err = c.manualErr; err == nil {
			c.manual = append(c.manual, on)
		}
	})
	return err
}

func (f *fakeCore) Feed(context.Context) (started bool, err error) {
	f.with(func(c *fakeCore) {
		if err = c.feedErr; err == nil {
			c.feeds++
			started = c.feeds == 1
		}
	})
	return started, err
}

func (f *fakeCore) Sleep(context.Context) error {
	f.with(func(c *fakeCore) { c.sleeps++ })
	return nil
}

func (f *fakeCore) Status() (snap status.Snapshot) {
	f.with(func(c *fakeCore) { snap = c.snap })
	return snap
}

func (f *fakeCore) touchCount() (n int) {
	f.with(func(c *fakeCore) { n = c.touches })
	return n
}

func newTestServer(t *testing.T, core *fakeCore, opts Options) *httptest.Server {
	t.Helper()
	srv := New(":0", core, logger.Nop(), opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newCore() *fakeCore {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeCore{
		schedule:  []byte(`[{"enabled":true,"time":"08:00","weekdays":[]}]`),
		system:    config.SystemConfig{AutoSleep: true, AutoSleepAfter: 300, Quantity: 50, Factor: 1},
		now:       session.Time{Year: 2026, Month: 1, Day: 5, Hour: 7, Minute: 59, Second: 50},
		remaining: 120,
		snap: status.Snapshot{
			State:         power.Interactive,
			StartTime:     start,
			Now:           start.Add(90 * time.Second),
			RTCTime:       time.Date(2026, 1, 5, 7, 59, 50, 0, time.UTC),
			IdleRemaining: 120,
			NextAlert:     &status.Alarm{At: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), Timer: 0},
			Network:       &status.NetworkInfo{Mode: "static", Address: "192.168.4.1", SSID: "Futterautomat"},
			Config:        status.Config{TickMs: 100, HTTPAddr: ":80", Store: "file"},
		},
	}
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestGetSchedule(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	code, body := do(t, http.MethodGet, ts.URL+"/get", "")
	if code != 200 {
		t.Errorf("status: got %d, want 200", code)
	}
	if body != string(core.schedule) {
		t.Errorf("body: got %s", body)
	}
	if n := core.touchCount(); n != 1 {
		t.Errorf("touches: got %d, want 1", n)
	}
}

func TestSetSchedule(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	doc := `[{"enabled":true,"time":"09:00"}]`
	code, body := do(t, http.MethodPost, ts.URL+"/set", doc)
	if code != 200 {
		t.Fatalf("status: got %d, want 200 (%s)", code, body)
	}
	core.with(func(c *fakeCore) {
		if len(c.setDocs) != 1 || string(c.setDocs[0]) != doc {
			t.Errorf("set docs: got %q", c.setDocs)
		}
	})
}

func TestSetScheduleErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: bad time", config.ErrValidation), http.StatusBadRequest},
		{"storage", fmt.Errorf("%w: disk full", config.ErrStorage), http.StatusInternalServerError},
		{"sleeping", power.ErrSleeping, http.StatusServiceUnavailable},
		{"relay", fmt.Errorf("%w: busy", gpio.ErrHardware), http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := newCore()
			core.setErr = tt.err
			ts := newTestServer(t, core, Options{})

			code, body := do(t, http.MethodPost, ts.URL+"/set", `[]`)
			if code != tt.want {
				t.Errorf("status: got %d, want %d", code, tt.want)
			}
			var eb errorBody
			if err := json.Unmarshal([]byte(body), &eb); err != nil || eb.Error == "" {
				t.Errorf("expected error body, got %s", body)
			}
		})
	}
}

func TestSystemEndpoints(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	code, body := do(t, http.MethodPost, ts.URL+"/system", `{"quantity": 80}`)
	if code != 200 {
		t.Fatalf("status: got %d, want 200", code)
	}

	code, body = do(t, http.MethodGet, ts.URL+"/system", "")
	if code != 200 {
		t.Fatalf("status: got %d, want 200", code)
	}
	var sys config.SystemConfig
	json.Unmarshal([]byte(body), &sys)
	if sys.Quantity != 80 || sys.AutoSleepAfter != 300 {
		t.Errorf("system: got %+v", sys)
	}

	core.with(func(c *fakeCore) { c.systemErr = fmt.Errorf("%w: factor", config.ErrValidation) })
	if code, _ := do(t, http.MethodPost, ts.URL+"/system", `{"factor": -1}`); code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", code)
	}
}

func TestTime(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	code, body := do(t, http.MethodGet, ts.URL+"/time", "")
	if code != 200 {
		t.Fatalf("status: got %d, want 200", code)
	}
	want := `{"year":2026,"month":1,"day":5,"hour":7,"minute":59,"second":50}`
	if strings.TrimSpace(body) != want {
		t.Errorf("body: got %s, want %s", body, want)
	}
	if core.touchCount() != 0 {
		t.Error("time polling must not reset the idle clock")
	}
}

func TestTimeHardwareError(t *testing.T) {
	core := newCore()
	core.timeErr = fmt.Errorf("read clock: %w", rtc.ErrHardware)
	ts := newTestServer(t, core, Options{})

	if code, _ := do(t, http.MethodGet, ts.URL+"/time", ""); code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", code)
	}
}

func TestAutoSleep(t *testing.T) {
	core := newCore()
	core.remaining = -4
	ts := newTestServer(t, core, Options{})

	code, body := do(t, http.MethodGet, ts.URL+"/autosleep", "")
	if code != 200 {
		t.Fatalf("status: got %d, want 200", code)
	}
	if strings.TrimSpace(body) != `{"remaining":-4}` {
		t.Errorf("body: got %s", body)
	}
}

func TestManualFeed(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	if code, _ := do(t, http.MethodPost, ts.URL+"/feed", `{"on": true}`); code != 200 {
		t.Errorf("status: got %d, want 200", code)
	}
	if code, _ := do(t, http.MethodPost, ts.URL+"/feed", `{"on": false}`); code != 200 {
		t.Errorf("status: got %d, want 200", code)
	}
	core.with(func(c *fakeCore) {
		if len(c.manual) != 2 || !c.manual[0] || c.manual[1] {
			t.Errorf("manual: got %v, want [true false]", c.manual)
		}
	})

	for _, bad := range []string{`{}`, `{"on": "yes"}`, `not json`} {
		if code, _ := do(t, http.MethodPost, ts.URL+"/feed", bad); code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", bad, code)
		}
	}
	core.with(func(c *fakeCore) {
		if len(c.manual) != 2 {
			t.Error("invalid requests must not reach the core")
		}
	})
}

func TestManualFeedRelayFault(t *testing.T) {
	core := newCore()
	core.with(func(c *fakeCore) { c.manualErr = fmt.Errorf("%w: set relay pin: busy", gpio.ErrHardware) })
	ts := newTestServer(t, core, Options{})

	code, body := do(t, http.MethodPost, ts.URL+"/feed", `{"on": true}`)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", code)
	}
	if !strings.Contains(body, "set relay pin") {
		t.Errorf("body: got %s", body)
	}
}

func TestFeedCycle(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	_, body := do(t, http.MethodPost, ts.URL+"/feed/cycle", "")
	if strings.TrimSpace(body) != `{"started":true}` {
		t.Errorf("first: got %s", body)
	}
	_, body = do(t, http.MethodPost, ts.URL+"/feed/cycle", "")
	if strings.TrimSpace(body) != `{"started":false}` {
		t.Errorf("second (coalesced): got %s", body)
	}

	core.with(func(c *fakeCore) { c.feedErr = power.ErrSleeping })
	if code, _ := do(t, http.MethodPost, ts.URL+"/feed/cycle", ""); code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", code)
	}
}

func TestSleep(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		if code, _ := do(t, method, ts.URL+"/sleep", ""); code != 200 {
			t.Errorf("%s /sleep: got %d, want 200", method, code)
		}
	}
	core.with(func(c *fakeCore) {
		if c.sleeps != 2 {
			t.Errorf("sleeps: got %d, want 2", c.sleeps)
		}
	})
}

func TestStatusJSON(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	resp, err := http.Get(ts.URL + "/status.json")
	if err != nil {
		t.Fatalf("GET /status.json: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.State != "INTERACTIVE" {
		t.Errorf("State: got %q, want INTERACTIVE", sj.Status.State)
	}
	if sj.Status.Network == nil || sj.Status.Network.Address != "192.168.4.1" {
		t.Errorf("Network: got %+v", sj.Status.Network)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	html := string(data)

	for _, want := range []string{"<title>Feeder</title>", "INTERACTIVE", "2026-01-05 08:00:00", "Futterautomat", "120s", "1m 30s"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if n := core.touchCount(); n != 1 {
		t.Errorf("touches: got %d, want 1", n)
	}
}

func TestHTMLDegradedRTC(t *testing.T) {
	core := newCore()
	core.snap.RTCError = "rtc: hardware unreachable"
	core.snap.NextAlert = nil
	ts := newTestServer(t, core, Options{})

	_, html := do(t, http.MethodGet, ts.URL+"/", "")
	if !strings.Contains(html, "degraded: rtc: hardware unreachable") {
		t.Error("HTML should show degraded RTC")
	}
	if !strings.Contains(html, "<td>none</td>") {
		t.Error("HTML should show no next feed")
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, newCore(), Options{})

	if code, _ := do(t, http.MethodGet, ts.URL+"/nope", ""); code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", code)
	}
	if code, _ := do(t, http.MethodDelete, ts.URL+"/get", ""); code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "feeder_feeds_total 1\n")
	})
	ts := newTestServer(t, newCore(), Options{Metrics: metrics})

	code, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	if code != 200 || !strings.Contains(body, "feeder_feeds_total") {
		t.Errorf("metrics: got %d %s", code, body)
	}

	ts = newTestServer(t, newCore(), Options{})
	if code, _ := do(t, http.MethodGet, ts.URL+"/metrics", ""); code != http.StatusNotFound {
		t.Errorf("without metrics handler: got %d, want 404", code)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, newCore(), Options{RequestRate: rate.Every(time.Hour), RequestBurst: 2})

	for i := 0; i < 2; i++ {
		if code, _ := do(t, http.MethodGet, ts.URL+"/autosleep", ""); code != 200 {
			t.Fatalf("request %d: got %d, want 200", i, code)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/autosleep", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status: got %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "3600" {
		t.Errorf("Retry-After: got %q, want 3600", resp.Header.Get("Retry-After"))
	}
}

func TestBodyTooLarge(t *testing.T) {
	core := newCore()
	ts := newTestServer(t, core, Options{})

	big := "[" + strings.Repeat(" ", maxBodyBytes+1) + "]"
	if code, _ := do(t, http.MethodPost, ts.URL+"/set", big); code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", code)
	}
	core.with(func(c *fakeCore) {
		if len(c.setDocs) != 0 {
			t.Error("oversized body must not reach the core")
		}
	})
}

func TestShutdown(t *testing.T) {
	srv := New("127.0.0.1:0", newCore(), logger.Nop(), Options{})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("ListenAndServe after shutdown: got %v", err)
	}
}
