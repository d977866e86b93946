package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/netif"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/rtc"
)

// Store backends.
const (
	backendFile   = "file"
	backendSQLite = "sqlite"
)

// option is a process setting exposed as a flag, an env var and a config file key.
type option struct {
	key  string
	flag string
	def  any
	help string
}

var options = []option{
	{"log.level", "log-level", logger.InfoLevel, "Log level (debug, info, warn, error)"},
	{"gpio.chip", "gpio-chip", gpio.DefaultChip, "GPIO character device"},
	{"gpio.relay", "pin-relay", gpio.DefaultPinRelay, "Line offset of the feed relay"},
	{"gpio.interrupt", "pin-interrupt", gpio.DefaultPinInterrupt, "Line offset of the RTC alarm interrupt"},
	{"rtc.device", "rtc", rtc.DefaultDevice, "RTC device node"},
	{"store.backend", "store", backendFile, "Config store backend (file, sqlite)"},
	{"store.path", "store-path", "/var/lib/feeder/config.json", "Config store path"},
	{"http.addr", "http", ":80", "HTTP listen address"},
	{"mqtt.broker", "broker", "", "MQTT broker address (empty to disable)"},
	{"loop.tick", "tick", 10 * time.Millisecond, "Control loop tick"},
	{"timezone", "timezone", "UTC", "Timezone timers are evaluated in"},
	{"ap.mode", "ap-mode", netif.ModeNMCLI, "Access point mode (nmcli, static)"},
	{"ap.interface", "ap-interface", netif.DefaultInterface, "Access point wireless interface"},
	{"ap.address", "ap-address", "192.168.4.1", "Access point address in static mode"},
	{"wifi.retry.initial", "wifi-retry", power.DefaultRetryInitial, "First wait when WiFi credentials are missing"},
	{"wifi.retry.max", "wifi-retry-max", power.DefaultRetryMax, "Longest wait when WiFi credentials are missing"},
}

// registerOptions adds every option to flags and binds it into v.
func registerOptions(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, o := range options {
		switch def := o.def.(type) {
		case string:
			flags.String(o.flag, def, o.help)
		case int:
			flags.Int(o.flag, def, o.help)
		case time.Duration:
			flags.Duration(o.flag, def, o.help)
		default:
			return fmt.Errorf("option %s: unsupported type %T", o.key, o.def)
		}
		v.SetDefault(o.key, o.def)
		if err := v.BindPFlag(o.key, flags.Lookup(o.flag)); err != nil {
			return fmt.Errorf("bind %s: %w", o.key, err)
		}
	}
	v.SetEnvPrefix("FEEDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// settings are the resolved process settings.
type settings struct {
	LogLevel     string
	GPIOChip     string
	RelayPin     int
	InterruptPin int
	RTCDevice    string
	StoreBackend string
	StorePath    string
	HTTPAddr     string
	MQTTBroker   string
	Tick         time.Duration
	Timezone     *time.Location
	APMode       string
	APInterface  string
	APAddress    string
	Retry        power.Backoff
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		LogLevel:     v.GetString("log.level"),
		GPIOChip:     v.GetString("gpio.chip"),
		RelayPin:     v.GetInt("gpio.relay"),
		InterruptPin: v.GetInt("gpio.interrupt"),
		RTCDevice:    v.GetString("rtc.device"),
		StoreBackend: v.GetString("store.backend"),
		StorePath:    v.GetString("store.path"),
		HTTPAddr:     v.GetString("http.addr"),
		MQTTBroker:   v.GetString("mqtt.broker"),
		Tick:         v.GetDuration("loop.tick"),
		APMode:       v.GetString("ap.mode"),
		APInterface:  v.GetString("ap.interface"),
		APAddress:    v.GetString("ap.address"),
		Retry: power.Backoff{
			Initial: v.GetDuration("wifi.retry.initial"),
			Max:     v.GetDuration("wifi.retry.max"),
		},
	}

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return settings{}, fmt.Errorf("timezone: %w", err)
	}
	s.Timezone = loc

	switch s.StoreBackend {
	case backendFile, backendSQLite:
	default:
		return settings{}, fmt.Errorf("store.backend: unknown backend %q", s.StoreBackend)
	}
	switch s.APMode {
	case netif.ModeNMCLI, netif.ModeStatic:
	default:
		return settings{}, fmt.Errorf("ap.mode: unknown mode %q", s.APMode)
	}
	if s.Tick <= 0 {
		return settings{}, fmt.Errorf("loop.tick: must be positive, got %v", s.Tick)
	}
	if s.StorePath == "" {
		return settings{}, fmt.Errorf("store.path: must not be empty")
	}
	if s.RelayPin < 0 || s.InterruptPin < 0 {
		return settings{}, fmt.Errorf("gpio: pins must not be negative")
	}
	return s, nil
}
