package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sipeed/relayd/pkg/logger"
)

// DefaultActionTimeout bounds one capability when HostOptions leaves it
// unset.
const DefaultActionTimeout = 30 * time.Second

// Runner starts an external program and waits for it. It must return once
// ctx is done.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	// Children such as a browser started by xdg-open may keep the output
	// pipe open after the process is killed.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type HostOptions struct {
	AppsDirs       []string
	StoragePath    string
	PowerSupplyDir string
	// ActionTimeout bounds each Execute call. Capabilities run on the poll
	// loop, so a hung tool must not hold it.
	ActionTimeout time.Duration
	Runner        Runner
}

// Host runs capabilities on a Linux desktop with the usual freedesktop
// tools (notify-send, xdg-open, espeak, amixer).
type Host struct {
	appsDirs       []string
	storagePath    string
	powerSupplyDir string
	actionTimeout  time.Duration
	run            Runner
	actions        map[string]func(ctx context.Context, args string) error
}

func NewHost(opts HostOptions) *Host {
	h := &Host{
		appsDirs:       opts.AppsDirs,
		storagePath:    opts.StoragePath,
		powerSupplyDir: opts.PowerSupplyDir,
		actionTimeout:  opts.ActionTimeout,
		run:            opts.Runner,
	}
	if h.actionTimeout <= 0 {
		h.actionTimeout = DefaultActionTimeout
	}
	if h.run == nil {
		h.run = execRunner
	}
	if h.storagePath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			h.storagePath = home
		} else {
			h.storagePath = "/"
		}
	}
	if h.powerSupplyDir == "" {
		h.powerSupplyDir = "/sys/class/power_supply"
	}

	h.actions = map[string]func(context.Context, string) error{
		"toast":    h.toast,
		"notify":   h.notify,
		"vibrate":  h.vibrate,
		"volume":   h.maxVolume,
		"speak":    h.speak,
		"open_url": h.openURL,
	}
	return h
}

// Execute never returns an error: failures are logged here and unknown
// names are ignored. Each action is cut off after the action timeout.
func (h *Host) Execute(ctx context.Context, name, args string) {
	action, ok := h.actions[name]
	if !ok {
		logger.DebugCF("device", "Ignoring unknown capability", map[string]any{
			"command": name,
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.actionTimeout)
	defer cancel()
	if err := action(ctx, args); err != nil {
		logger.ErrorCF("device", "Capability failed", map[string]any{
			"command": name,
			"error":   err.Error(),
		})
	}
}

func (h *Host) toast(ctx context.Context, args string) error {
	return h.run(ctx, "notify-send", "--expire-time=3500", args)
}

func (h *Host) notify(ctx context.Context, args string) error {
	n := ParseNotification(args)
	return h.run(ctx, "notify-send", "--urgency=normal", n.Title, n.Body+"\n"+n.URL)
}

func (h *Host) vibrate(context.Context, string) error {
	logger.InfoC("device", "Vibrate requested, host has no vibration motor")
	return nil
}

func (h *Host) maxVolume(ctx context.Context, _ string) error {
	return h.run(ctx, "amixer", "-q", "set", "Master", "100%", "unmute")
}

func (h *Host) speak(ctx context.Context, args string) error {
	if args == "" {
		return nil
	}
	return h.run(ctx, "espeak", "-v", "en-us", args)
}

func (h *Host) openURL(ctx context.Context, args string) error {
	url := strings.TrimSpace(args)
	if url == "" {
		return errors.New("open_url needs a URL")
	}
	return h.run(ctx, "xdg-open", url)
}

// Notification is the payload of the notify capability.
type Notification struct {
	Title string
	Body  string
	URL   string
}

// ParseNotification splits "Title|Body|URL". Missing fields fall back to
// defaults.
func ParseNotification(args string) Notification {
	n := Notification{
		Title: "Notification",
		Body:  "Click to view",
		URL:   "https://google.com",
	}
	parts := strings.Split(args, "|")
	if len(parts) > 0 && parts[0] != "" {
		n.Title = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		n.Body = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		n.URL = parts[2]
	}
	return n
}

// ChargeLevel reads the first battery under the power supply class.
func (h *Host) ChargeLevel(context.Context) (int, error) {
	entries, err := os.ReadDir(h.powerSupplyDir)
	if err != nil {
		return 0, fmt.Errorf("read power supplies: %w", err)
	}
	for _, entry := range entries {
		dir := filepath.Join(h.powerSupplyDir, entry.Name())
		kind, err := readTrimmed(filepath.Join(dir, "type"))
		if err != nil || kind != "Battery" {
			continue
		}
		raw, err := readTrimmed(filepath.Join(dir, "capacity"))
		if err != nil {
			return 0, fmt.Errorf("read capacity of %s: %w", entry.Name(), err)
		}
		level, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("parse capacity of %s: %w", entry.Name(), err)
		}
		return level, nil
	}
	return 0, errors.New("no battery found")
}

func (h *Host) FreeStorage(context.Context) (string, error) {
	free, err := freeBytes(h.storagePath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", h.storagePath, err)
	}
	return humanize.IBytes(free) + " Free", nil
}

// InstalledApps lists desktop entry ids, sorted, without duplicates.
func (h *Host) InstalledApps(context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var apps []string
	for _, dir := range h.appsDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, path := range matches {
			if hiddenEntry(path) {
				continue
			}
			id := strings.TrimSuffix(filepath.Base(path), ".desktop")
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			apps = append(apps, id)
		}
	}
	sort.Strings(apps)
	return apps, nil
}

// hiddenEntry reports NoDisplay=true or Hidden=true entries.
func hiddenEntry(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "NoDisplay=true" || line == "Hidden=true" {
			return true
		}
	}
	return false
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
