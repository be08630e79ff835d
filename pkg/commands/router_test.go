package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type executed struct {
	name string
	args string
}

type fakeDevice struct {
	charge     int
	chargeErr  error
	storage    string
	apps       []string
	executions []executed
}

func (f *fakeDevice) Execute(_ context.Context, name, args string) {
	f.executions = append(f.executions, executed{name: name, args: args})
}

func (f *fakeDevice) ChargeLevel(context.Context) (int, error) {
	return f.charge, f.chargeErr
}

func (f *fakeDevice) FreeStorage(context.Context) (string, error) {
	return f.storage, nil
}

func (f *fakeDevice) InstalledApps(context.Context) ([]string, error) {
	return f.apps, nil
}

func appNames(n int) []string {
	apps := make([]string, n)
	for i := range apps {
		apps[i] = fmt.Sprintf("com.example.app%02d", i)
	}
	return apps
}

func TestPingIgnoresDeviceState(t *testing.T) {
	for _, dev := range []*fakeDevice{
		{},
		{charge: 3, chargeErr: errors.New("no battery")},
	} {
		r := NewDefaultRouter(dev)
		got := r.Route(context.Background(), Command{Name: "ping"})
		text, ok := got.ReplyText()
		if !ok || text != PongReply {
			t.Fatalf("ping reply = %q, %v", text, ok)
		}
		if len(dev.executions) != 0 {
			t.Fatalf("ping reached the executor: %+v", dev.executions)
		}
	}
}

func TestInfoTemplate(t *testing.T) {
	r := NewDefaultRouter(&fakeDevice{charge: 87, storage: "12 GB Free"})
	text, ok := r.Route(context.Background(), Command{Name: "info"}).ReplyText()
	if !ok {
		t.Fatal("info produced no reply")
	}
	if text != "Battery: 87%\nStorage: 12 GB Free" {
		t.Fatalf("info reply = %q", text)
	}
}

func TestInfoReportsCollaboratorError(t *testing.T) {
	r := NewDefaultRouter(&fakeDevice{chargeErr: errors.New("no power supply")})
	out := r.Route(context.Background(), Command{Name: "info"})
	if out.Kind != Failed {
		t.Fatalf("kind = %v, want Failed", out.Kind)
	}
	text, ok := out.ReplyText()
	if !ok || !strings.HasPrefix(text, "error: ") || !strings.Contains(text, "no power supply") {
		t.Fatalf("reply = %q", text)
	}
}

func TestAppsLineCount(t *testing.T) {
	for _, total := range []int{1, 5, 20, 21, 150} {
		t.Run(fmt.Sprint(total), func(t *testing.T) {
			apps := appNames(total)
			r := NewDefaultRouter(&fakeDevice{apps: apps})
			text, ok := r.Route(context.Background(), Command{Name: "apps"}).ReplyText()
			if !ok {
				t.Fatal("no reply")
			}
			lines := strings.Split(text, "\n")
			want := min(MaxListedApps, total)
			if len(lines) != want {
				t.Fatalf("got %d lines, want %d", len(lines), want)
			}
			if lines[0] != apps[0] || lines[len(lines)-1] != apps[want-1] {
				t.Fatal("apps reply must keep the collaborator's order")
			}
		})
	}
}

func TestAppsWithNothingInstalledSendsNothing(t *testing.T) {
	r := NewDefaultRouter(&fakeDevice{})
	if _, ok := r.Route(context.Background(), Command{Name: "apps"}).ReplyText(); ok {
		t.Fatal("an empty list should not produce a reply")
	}
}

func TestUnknownCommandsGoToExecutor(t *testing.T) {
	dev := &fakeDevice{}
	r := NewDefaultRouter(dev)

	inputs := []string{"/notify Title|Body|http://x", "/vibrate", "", "/selfdestruct now"}
	for _, in := range inputs {
		out := r.RouteText(context.Background(), in)
		if _, ok := out.ReplyText(); ok {
			t.Fatalf("forwarded command %q produced a reply", in)
		}
	}

	want := []executed{
		{name: "notify", args: "Title|Body|http://x"},
		{name: "vibrate", args: ""},
		{name: "", args: ""},
		{name: "selfdestruct", args: "now"},
	}
	if len(dev.executions) != len(want) {
		t.Fatalf("executions = %+v", dev.executions)
	}
	for i := range want {
		if dev.executions[i] != want[i] {
			t.Errorf("execution %d = %+v, want %+v", i, dev.executions[i], want[i])
		}
	}
}

func TestRegisterOverridesAndHelp(t *testing.T) {
	dev := &fakeDevice{}
	r := NewDefaultRouter(dev)
	r.Register("ping", "custom", func(context.Context, Command) Outcome {
		return ReplyWith("custom pong")
	})

	text, _ := r.Route(context.Background(), Command{Name: "ping"}).ReplyText()
	if text != "custom pong" {
		t.Fatalf("override not used: %q", text)
	}
	if got := len(r.Builtins()); got != 4 {
		t.Fatalf("Builtins() has %d entries, want 4", got)
	}

	help, ok := r.Route(context.Background(), Command{Name: "help"}).ReplyText()
	if !ok {
		t.Fatal("help produced no reply")
	}
	for _, name := range []string{"/ping", "/info", "/apps", "/help"} {
		if !strings.Contains(help, name) {
			t.Errorf("help missing %s: %q", name, help)
		}
	}
}

func TestNilExecutorIsNoop(t *testing.T) {
	r := NewRouter(nil)
	if out := r.Route(context.Background(), Command{Name: "vibrate"}); out.Kind != NoReply {
		t.Fatalf("kind = %v", out.Kind)
	}
}
