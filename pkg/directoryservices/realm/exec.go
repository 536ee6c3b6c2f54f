package realm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
)

// Exec is the Authority implementation that shells out to the samba
// net utility, authenticating with the kerberos ticket in the system
// credential cache.
type Exec struct {
	// NetPath is the net binary. Default /usr/bin/net.
	NetPath string

	// CCache is the kerberos credential cache the commands use.
	CCache string

	// LogDir receives testjoin failure diagnostics. Default
	// /var/log/truenas-middleware.
	LogDir string
}

// NewExec creates an Authority backed by the net command.
func NewExec() *Exec {
	return &Exec{
		NetPath: "/usr/bin/net",
		CCache:  "/var/run/middleware/krb5cc_0",
		LogDir:  "/var/log/truenas-middleware",
	}
}

// kerberosArgs are the flags forcing ticket-based authentication.
func (e *Exec) kerberosArgs() []string {
	return []string{"--use-kerberos", "required", "--use-krb5-ccache", e.CCache}
}

// run executes net with the given arguments. Non-zero exits are
// returned as *CommandError with captured output.
func (e *Exec) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.NetPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else {
		return "", fmt.Errorf("failed to run %s: %w", e.NetPath, err)
	}

	return "", &CommandError{
		Command:  "net " + strings.Join(args, " "),
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}

// LookupDC queries domain-controller information, flushing the local
// cache and retrying once on failure.
func (e *Exec) LookupDC(ctx context.Context, domain string) (*DCInfo, error) {
	out, err := withCacheFlushRetry(ctx, func() (string, error) {
		return e.run(ctx, "--json", "-S", domain, "--realm", domain, "ads", "lookup")
	}, e.FlushCache)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return nil, fmt.Errorf("failed to look up domain controller information: %s",
				strings.TrimSpace(cmdErr.Stderr))
		}
		return nil, err
	}

	var info DCInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("failed to parse domain controller lookup output: %w", err)
	}
	return &info, nil
}

// DomainInfo queries information about the domain, flushing the local
// cache and retrying once on failure.
func (e *Exec) DomainInfo(ctx context.Context, domain string) (*DomainInfo, error) {
	args := []string{"--json", "ads", "info"}
	if domain != "" {
		args = []string{"-S", domain, "--json", "--option", "realm=" + domain, "ads", "info"}
	}

	out, err := withCacheFlushRetry(ctx, func() (string, error) {
		return e.run(ctx, args...)
	}, e.FlushCache)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			if strings.TrimSpace(cmdErr.Stderr) == "Didn't find the ldap server!" {
				return nil, errors.New(
					"Failed to discover Active Directory Domain Controller " +
						"for domain. This may indicate a DNS misconfiguration.")
			}
			return nil, errors.New(cmdErr.Stderr)
		}
		return nil, err
	}

	var info DomainInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("failed to parse domain info output: %w", err)
	}
	return &info, nil
}

// TestJoin performs the non-mutating membership check. Failure
// diagnostics are captured to a log file for later inspection because
// testjoin legitimately fails when the appliance boots before the
// domain controllers.
func (e *Exec) TestJoin(ctx context.Context, workgroup string) error {
	args := append(e.kerberosArgs(), "-w", workgroup, "-d", "5", "ads", "testjoin")
	_, err := e.run(ctx, args...)
	if err == nil {
		return nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		logPath := filepath.Join(e.LogDir, fmt.Sprintf("domain_testjoin_%d.log", time.Now().Unix()))
		if werr := os.WriteFile(logPath, []byte(cmdErr.Stderr), 0o600); werr != nil {
			logger.Warn("Failed to write testjoin diagnostic log", "path", logPath, "error", werr)
		}
	}
	return err
}

// Join joins the appliance to the domain. DNS updates are registered
// separately after the join, so the join call itself never touches DNS.
func (e *Exec) Join(ctx context.Context, workgroup string, req JoinRequest) error {
	args := append(e.kerberosArgs(),
		"-w", workgroup,
		"-U", req.BindName,
		"-d", "5",
		"ads", "join")
	if req.CreateComputer != "" {
		args = append(args, "createcomputer="+req.CreateComputer)
	}
	args = append(args, "--no-dns-updates", req.Domain)

	_, err := e.run(ctx, args...)
	if err == nil {
		return nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		logger.Warn("Domain join failed", "stderr", cmdErr.Stderr)
		return ParseJoinError(cmdErr.Stdout)
	}
	return err
}

// Leave removes the computer account from the domain.
func (e *Exec) Leave(ctx context.Context, username string) error {
	args := append(e.kerberosArgs(), "-U", username, "ads", "leave")
	_, err := e.run(ctx, args...)
	return err
}

// FlushCache invalidates the local name/ID-mapping cache.
func (e *Exec) FlushCache(ctx context.Context) error {
	_, err := e.run(ctx, "cache", "flush")
	return err
}

// ParseJoinError extracts a clean message from join command output.
// The joining library reports configuration problems (wrong workgroup,
// wrong realm, bad security settings) as "<prefix>: Invalid
// configuration (...)"; everything after the closing parenthesis is
// library noise and is dropped.
func ParseJoinError(stdout string) error {
	parts := strings.SplitN(strings.TrimSpace(stdout), ":", 2)
	if len(parts) < 2 {
		return errors.New(strings.TrimSpace(stdout))
	}

	msg := parts[1]
	if strings.Contains(msg, "Invalid configuration") {
		if i := strings.LastIndex(msg, ")"); i >= 0 {
			msg = msg[:i]
		}
		return errors.New(strings.TrimSpace(msg) + ").")
	}
	return errors.New(strings.TrimSpace(msg))
}
