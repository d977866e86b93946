// Package netif brings up the wireless access point the configuration UI is
// served on.
package netif

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/sweeney/feeder/internal/logger"
)

// Modes accepted by New.
const (
	ModeNMCLI  = "nmcli"
	ModeStatic = "static"
)

// DefaultInterface is the wireless interface used when none is configured.
const DefaultInterface = "wlan0"

// ErrUnavailable is returned when the access point could not be started.
var ErrUnavailable = errors.New("netif: access point unavailable")

// AccessPoint starts a wireless access point and reports the address the
// device is reachable on.
type AccessPoint interface {
	Start(ctx context.Context, ssid, password string) (addr string, err error)
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// NMCLI starts a hotspot through the NetworkManager command line client.
type NMCLI struct {
	Interface string
	Run       Runner
	Log       *logger.Logger
}

// NewNMCLI returns an NMCLI access point for iface using os/exec.
func NewNMCLI(iface string, log *logger.Logger) *NMCLI {
	if iface == "" {
		iface = DefaultInterface
	}
	return &NMCLI{Interface: iface, Run: ExecRunner, Log: log}
}

// Start creates the hotspot and returns the interface's IPv4 address.
func (n *NMCLI) Start(ctx context.Context, ssid, password string) (string, error) {
	if ssid == "" {
		return "", fmt.Errorf("%w: empty ssid", ErrUnavailable)
	}
	args := []string{"device", "wifi", "hotspot", "ifname", n.Interface, "ssid", ssid}
	if password != "" {
		if len(password) < 8 || len(password) > 63 {
			return "", fmt.Errorf("%w: password must be 8-63 characters", ErrUnavailable)
		}
		args = append(args, "password", password)
	}
	if out, err := n.Run(ctx, "nmcli", args...); err != nil {
		return "", fmt.Errorf("%w: hotspot: %v: %s", ErrUnavailable, err, strings.TrimSpace(string(out)))
	}

	out, err := n.Run(ctx, "nmcli", "-g", "IP4.ADDRESS", "device", "show", n.Interface)
	if err != nil {
		return "", fmt.Errorf("%w: address: %v", ErrUnavailable, err)
	}
	addr, err := parseAddress(out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n.Log.Infow("access point started", "interface", n.Interface, "ssid", ssid, "address", addr)
	return addr, nil
}

// parseAddress takes the first prefix from nmcli's IP4.ADDRESS output, which
// may list several separated by " | " or newlines.
func parseAddress(out []byte) (string, error) {
	fields := strings.FieldsFunc(string(out), func(r rune) bool {
		return r == '|' || r == '\n' || r == ' '
	})
	if len(fields) == 0 {
		return "", errors.New("no address assigned")
	}
	p, err := netip.ParsePrefix(fields[0])
	if err != nil {
		a, aerr := netip.ParseAddr(fields[0])
		if aerr != nil {
			return "", fmt.Errorf("parse address %q: %w", fields[0], err)
		}
		return a.String(), nil
	}
	return p.Addr().String(), nil
}

// Static is an access point managed outside the process.
type Static struct {
	Address string
}

// Start returns the configured address.
func (s Static) Start(context.Context, string, string) (string, error) {
	return s.Address, nil
}

// New returns the access point for mode.
func New(mode, iface, address string, log *logger.Logger) (AccessPoint, error) {
	switch mode {
	case ModeNMCLI, "":
		return NewNMCLI(iface, log), nil
	case ModeStatic:
		return Static{Address: address}, nil
	default:
		return nil, fmt.Errorf("unknown access point mode %q", mode)
	}
}
