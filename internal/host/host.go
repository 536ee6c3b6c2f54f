// Package host implements the runtime collaborator interfaces against
// the appliance's system tooling.
//
// The directory service runtime is deliberately ignorant of how the
// host renders configuration files, restarts services, or talks to
// samba; this package supplies those behaviors by shelling out to the
// middleware client and the samba utilities.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
)

// Runner executes host commands. The zero value is unusable; use
// NewRunner.
type Runner struct {
	// MidcltPath is the middleware client binary. Default /usr/bin/midclt.
	MidcltPath string

	// NetPath is the samba net binary. Default /usr/bin/net.
	NetPath string

	// SystemctlPath is the service manager binary. Default /usr/bin/systemctl.
	SystemctlPath string
}

// NewRunner creates a Runner with the standard binary paths.
func NewRunner() *Runner {
	return &Runner{
		MidcltPath:    "/usr/bin/midclt",
		NetPath:       "/usr/bin/net",
		SystemctlPath: "/usr/bin/systemctl",
	}
}

// run executes the named binary and returns its stdout. Non-zero exits
// become errors carrying the captured stderr.
func (r *Runner) run(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", bin, strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

// call invokes a middleware method via midclt. Arguments are JSON
// encoded positionally.
func (r *Runner) call(ctx context.Context, method string, args ...any) (string, error) {
	cmdArgs := []string{"call", method}
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode argument for %s: %w", method, err)
		}
		cmdArgs = append(cmdArgs, string(data))
	}
	return r.run(ctx, r.MidcltPath, cmdArgs...)
}

// callJSON invokes a middleware method and decodes the JSON reply into out.
func (r *Runner) callJSON(ctx context.Context, out any, method string, args ...any) error {
	raw, err := r.call(ctx, method, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	return nil
}

// net invokes the samba net utility.
func (r *Runner) net(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, r.NetPath, args...)
}

// systemctl invokes the service manager, logging the action at debug.
func (r *Runner) systemctl(ctx context.Context, action, unit string) error {
	logger.Debug("systemctl", "action", action, "unit", unit)
	_, err := r.run(ctx, r.SystemctlPath, action, unit)
	return err
}
