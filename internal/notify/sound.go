package notify

import (
	"log/slog"
	"os/exec"

	"marketdesk/internal/domain"
)

// Sound runs a configured command when an alert fires, typically an audio
// player. This is the system-level notification channel; the in-process
// channel is the Notifier event stream, which fires regardless. When the
// channel is not enabled it stays silent without affecting anything else.
type Sound struct {
	command string
	enabled bool
	log     *slog.Logger
}

// NewSound creates a Sound sink. The command is run with the fired alert's
// symbol as its single argument.
func NewSound(command string, enabled bool, log *slog.Logger) *Sound {
	return &Sound{command: command, enabled: enabled, log: log}
}

// AlertFired plays the configured sound for a fired alert. Failures are
// logged and swallowed; a broken player never blocks the sweep.
func (s *Sound) AlertFired(a domain.Alert) {
	if !s.enabled || s.command == "" {
		return
	}
	cmd := exec.Command(s.command, a.Symbol)
	if err := cmd.Start(); err != nil {
		s.log.Warn("starting alert sound", "command", s.command, "error", err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			s.log.Warn("alert sound exited", "command", s.command, "error", err)
		}
	}()
}
