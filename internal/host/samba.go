package host

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/runtime"
)

// SMB reads and writes the file-sharing identity through the
// middleware SMB configuration.
type SMB struct {
	runner *Runner
}

// NewSMB creates the configurator.
func NewSMB(runner *Runner) *SMB {
	return &SMB{runner: runner}
}

// smbConfigReply is the subset of the middleware SMB configuration the
// directory service consumes.
type smbConfigReply struct {
	NetbiosName    string   `json:"netbiosname"`
	NetbiosAliases []string `json:"netbiosalias"`
	Workgroup      string   `json:"workgroup"`
}

func (s *SMB) Config(ctx context.Context) (*runtime.SMBInfo, error) {
	var reply smbConfigReply
	if err := s.runner.callJSON(ctx, &reply, "smb.config"); err != nil {
		return nil, err
	}
	return &runtime.SMBInfo{
		NetbiosName: reply.NetbiosName,
		Aliases:     reply.NetbiosAliases,
		Workgroup:   reply.Workgroup,
	}, nil
}

func (s *SMB) SetWorkgroup(ctx context.Context, workgroup string) error {
	_, err := s.runner.call(ctx, "smb.update", map[string]string{"workgroup": workgroup})
	return err
}

func (s *SMB) SetNetbiosName(ctx context.Context, name string) error {
	_, err := s.runner.call(ctx, "smb.update", map[string]string{"netbiosname": name})
	return err
}

// Etc triggers middleware configuration rendering.
type Etc struct {
	runner *Runner
}

// NewEtc creates the generator.
func NewEtc(runner *Runner) *Etc {
	return &Etc{runner: runner}
}

func (e *Etc) Regenerate(ctx context.Context, component string) error {
	_, err := e.runner.call(ctx, "etc.generate", component)
	return err
}

// DNS manages the appliance's records in the domain's DNS through the
// samba net utility, authenticated by the system credential cache.
type DNS struct {
	runner *Runner

	// CCache is the kerberos credential cache used for updates.
	CCache string
}

// NewDNS creates the registrar.
func NewDNS(runner *Runner, ccache string) *DNS {
	return &DNS{runner: runner, CCache: ccache}
}

func (d *DNS) kerberosArgs() []string {
	return []string{"--use-kerberos", "required", "--use-krb5-ccache", d.CCache}
}

func (d *DNS) Register(ctx context.Context, cfg *models.MembershipConfig, smb *runtime.SMBInfo) error {
	args := append(d.kerberosArgs(), "ads", "dns", "register",
		fmt.Sprintf("%s.%s", strings.ToLower(smb.NetbiosName), strings.ToLower(cfg.DomainName)))
	_, err := d.runner.net(ctx, args...)
	return err
}

func (d *DNS) Unregister(ctx context.Context, cfg *models.MembershipConfig) error {
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}
	short, _, _ := strings.Cut(hostname, ".")
	args := append(d.kerberosArgs(), "ads", "dns", "unregister",
		fmt.Sprintf("%s.%s", strings.ToLower(short), strings.ToLower(cfg.DomainName)))
	_, err = d.runner.net(ctx, args...)
	return err
}

// SPN provisions service principals on the computer account with
// net ads keytab, which also writes them to the system keytab.
type SPN struct {
	runner *Runner
	ccache string
}

// NewSPN creates the provisioner.
func NewSPN(runner *Runner, ccache string) *SPN {
	return &SPN{runner: runner, ccache: ccache}
}

// spnWaiter runs the principal additions in the background so the join
// can await them under its own timeout.
type spnWaiter struct {
	done chan error
}

func (w *spnWaiter) Wait(ctx context.Context) error {
	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SPN) AddServicePrincipals(ctx context.Context, netbiosName, domain string) (runtime.SPNWaiter, error) {
	w := &spnWaiter{done: make(chan error, 1)}
	go func() {
		var firstErr error
		for _, spn := range []string{
			fmt.Sprintf("nfs/%s.%s", strings.ToLower(netbiosName), strings.ToLower(domain)),
			fmt.Sprintf("nfs/%s", strings.ToUpper(netbiosName)),
		} {
			args := []string{"--use-kerberos", "required", "--use-krb5-ccache", s.ccache,
				"ads", "keytab", "add", spn}
			if _, err := s.runner.net(ctx, args...); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		w.done <- firstErr
	}()
	return w, nil
}
