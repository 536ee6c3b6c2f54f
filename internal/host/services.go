package host

import (
	"context"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
)

// serviceUnits maps middleware service names to systemd units.
var serviceUnits = map[string]string{
	"cifs":  "smbd.service",
	"idmap": "winbind.service",
	"nfs":   "nfs-server.service",
	"ssh":   "ssh.service",
}

// dependentServices are restarted after the directory service comes up
// so they pick up the new identity information.
var dependentServices = []string{"cifs", "nfs"}

// Services is the systemd-backed ServiceController.
type Services struct {
	runner *Runner
}

// NewServices creates the controller.
func NewServices(runner *Runner) *Services {
	return &Services{runner: runner}
}

func (s *Services) unit(name string) string {
	if unit, ok := serviceUnits[name]; ok {
		return unit
	}
	return name
}

func (s *Services) Start(ctx context.Context, name string) error {
	return s.runner.systemctl(ctx, "start", s.unit(name))
}

func (s *Services) Stop(ctx context.Context, name string) error {
	return s.runner.systemctl(ctx, "stop", s.unit(name))
}

func (s *Services) Restart(ctx context.Context, name string) error {
	return s.runner.systemctl(ctx, "restart", s.unit(name))
}

func (s *Services) Reload(ctx context.Context, name string) error {
	return s.runner.systemctl(ctx, "reload-or-restart", s.unit(name))
}

func (s *Services) Enable(ctx context.Context, name string) error {
	return s.runner.systemctl(ctx, "enable", s.unit(name))
}

// RestartDependents restarts the services that consume directory
// identity information. Individual failures are logged and the
// remaining services still restart.
func (s *Services) RestartDependents(ctx context.Context) error {
	var firstErr error
	for _, name := range dependentServices {
		if err := s.Restart(ctx, name); err != nil {
			logger.Warn("Failed to restart dependent service", "service", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
