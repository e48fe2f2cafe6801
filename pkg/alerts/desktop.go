package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"openclaw/hub/pkg/storage"
)

// DesktopChannel shows a native desktop notification. macOS goes through
// osascript, Linux through notify-send. Both are best-effort: a missing
// binary or headless session just logs a debug line.
type DesktopChannel struct {
	logger *slog.Logger
}

// NewDesktopChannel creates the channel.
func NewDesktopChannel(logger *slog.Logger) *DesktopChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &DesktopChannel{logger: logger}
}

// Name implements Channel.
func (c *DesktopChannel) Name() string { return "desktop" }

// Notify implements Channel.
func (c *DesktopChannel) Notify(ctx context.Context, alert *storage.Alert) error {
	title := fmt.Sprintf("Hub alert: %s", alert.Kind)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", alert.Message, title)
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	case "linux":
		cmd = exec.CommandContext(ctx, "notify-send", "-u", urgency(alert.Severity), title, alert.Message)
	default:
		c.logger.DebugContext(ctx, "Desktop notifications unsupported on this platform",
			"goos", runtime.GOOS)
		return nil
	}

	if err := cmd.Run(); err != nil {
		c.logger.DebugContext(ctx, "Desktop notification skipped",
			"error", err)
	}
	return nil
}

func urgency(severity string) string {
	switch severity {
	case "critical", "error":
		return "critical"
	case "warning":
		return "normal"
	default:
		return "low"
	}
}
