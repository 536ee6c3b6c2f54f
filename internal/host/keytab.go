package host

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/models"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/store"
)

// Keytabs manages the machine-account keytab material. The join writes
// keys into the system keytab file; this component mirrors them into
// the database so they survive a system keytab rebuild.
type Keytabs struct {
	runner *Runner
	store  store.Store

	// SystemKeytab is the local keytab file. Default /etc/krb5.keytab.
	SystemKeytab string
}

// NewKeytabs creates the manager.
func NewKeytabs(runner *Runner, st store.Store, systemKeytab string) *Keytabs {
	if systemKeytab == "" {
		systemKeytab = "/etc/krb5.keytab"
	}
	return &Keytabs{runner: runner, store: st, SystemKeytab: systemKeytab}
}

// StoreMachineKeytab persists the system keytab content, which at this
// point holds the keys the domain join generated.
func (k *Keytabs) StoreMachineKeytab(ctx context.Context) error {
	data, err := os.ReadFile(k.SystemKeytab)
	if err != nil {
		return fmt.Errorf("failed to read system keytab: %w", err)
	}
	return k.store.SaveKeytab(ctx, &models.KerberosKeytab{
		Name: models.MachineAccountKeytabName,
		File: base64.StdEncoding.EncodeToString(data),
	})
}

// RecoverMachineKeytab rebuilds the keytab record from the secrets the
// middleware persisted for the domain.
func (k *Keytabs) RecoverMachineKeytab(ctx context.Context, domain string) error {
	_, err := k.runner.call(ctx, "directoryservices.secrets.restore_keytab", domain)
	if err != nil {
		return err
	}
	return k.StoreMachineKeytab(ctx)
}

// RemoveSystemKeytab deletes the local keytab file. Absence is not an
// error.
func (k *Keytabs) RemoveSystemKeytab(ctx context.Context) error {
	if err := os.Remove(k.SystemKeytab); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
