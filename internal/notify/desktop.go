package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
)

// Desktop shows the one-line summary as a desktop notification on macOS
// and Linux. Other platforms are ignored.
type Desktop struct {
	// run executes the notification command; tests replace it.
	run  func(ctx context.Context, name string, args ...string) error
	goos string
}

// NewDesktop returns a desktop notifier for the current platform
func NewDesktop() *Desktop {
	return &Desktop{
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		goos: runtime.GOOS,
	}
}

// Send implements Notifier
func (d *Desktop) Send(ctx context.Context, n Notification) error {
	text := n.Summary
	if text == "" {
		text = n.Message
	}
	switch d.goos {
	case "darwin":
		script := "display notification " + appleString(text) + " with title " + appleString(n.Title)
		return d.run(ctx, "osascript", "-e", script)
	case "linux":
		return d.run(ctx, "notify-send", "-u", urgency(n.Level), "-i", icon(n.Level), n.Title, text)
	}
	return nil
}

func appleString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func urgency(l Level) string {
	if l == LevelError {
		return "critical"
	}
	return "normal"
}

func icon(l Level) string {
	switch l {
	case LevelSuccess:
		return "dialog-positive"
	case LevelWarning:
		return "dialog-warning"
	case LevelError:
		return "dialog-error"
	}
	return "dialog-information"
}
