package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wongsyrone/truenas-scale-middleware/internal/host"
	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/api"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/config"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/krb5"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/realm"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/runtime"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/store"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/validate"
	"github.com/wongsyrone/truenas-scale-middleware/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the directory service controller",
	Long: `Start the directory service controller and its REST API.

Use --config to specify a custom configuration file, or it will use the
default location at /etc/truenas-middleware/config.yaml.

Examples:
  # Start with default config location
  dscontrollerd serve

  # Start with custom config
  dscontrollerd serve --config /etc/dscontrollerd.yaml

  # Start with environment variable overrides
  DSCONTROLLER_LOGGING_LEVEL=DEBUG dscontrollerd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", fmt.Sprintf(":%d/metrics", cfg.API.Port))
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()
	logger.Info("Database ready", "path", cfg.Database.Path)

	rt := buildRuntime(cfg, st)

	server := api.NewServer(cfg.API, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("Directory service controller starting", "version", Version)
	return server.Start(ctx)
}

// buildRuntime wires the runtime against the host integrations.
func buildRuntime(cfg *config.Config, st store.Store) *runtime.Runtime {
	ds := cfg.DirectoryServices

	runner := host.NewRunner()
	runner.NetPath = ds.NetPath

	cache := krb5.NewClient(ds.SystemKeytab)
	broker := krb5.NewBroker(cache)

	authority := realm.NewExec()
	authority.NetPath = ds.NetPath
	authority.CCache = ds.CredentialCache
	authority.LogDir = ds.LogDirectory

	gate := &validate.Gate{
		Pools:     host.NewPools(runner),
		LDAP:      host.NewLDAP(runner),
		Idmap:     host.NewIdmapCapabilities(runner),
		DNS:       host.NewResolver(),
		Realms:    st,
		Authority: authority,
		Broker:    broker,
	}

	return runtime.New(runtime.Deps{
		Store:     st,
		Gate:      gate,
		Broker:    broker,
		Authority: authority,

		SMB:      host.NewSMB(runner),
		Etc:      host.NewEtc(runner),
		Services: host.NewServices(runner),
		DNS:      host.NewDNS(runner, ds.CredentialCache),
		SPN:      host.NewSPN(runner, ds.CredentialCache),
		Keytabs:  host.NewKeytabs(runner, st, ds.SystemKeytab),
		Idmap:    host.NewIdmap(runner),
		NTP:      host.NewNTP(runner),
		Secrets:  host.NewSecrets(runner),
		Cache:    host.NewCache(runner),
		Network:  host.NewNetwork(runner),

		SPNTimeout: ds.SPNTimeout,
	})
}
