// Package cli implements the keyctl command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/auth"
	"github.com/bi-platform/apikeys/internal/clock"
	"github.com/bi-platform/apikeys/internal/config"
	"github.com/bi-platform/apikeys/internal/db"
	"github.com/bi-platform/apikeys/internal/telemetry"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	actor      string
	logLevel   string
}

// Execute creates the root command tree and runs it.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "keyctl",
		Short: "Manage API keys from the command line",
		Long: `keyctl creates, lists, revokes and verifies API keys directly against the
database configured for the API key server. It acts as an administrator, so it can
manage keys for any user.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			telemetry.SetupLoggerTo(cmd.ErrOrStderr(), "text", g.logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("CONFIG_PATH"), "config file (default: ./config.yaml, ./config/config.yaml or /etc/apikeys/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.actor, "as", "keyctl", "identity recorded as created_by / revoked_by")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(newCreateCmd(g))
	cmd.AddCommand(newListCmd(g))
	cmd.AddCommand(newRevokeCmd(g))
	cmd.AddCommand(newVerifyCmd(g))
	cmd.AddCommand(newGenerateCmd())

	return cmd
}

// principal is the admin identity keyctl acts as.
func (g *globals) principal() apikeys.Principal {
	return apikeys.Principal{ID: g.actor, IsAdmin: true}
}

// openService loads the configuration and opens the key store it names. The returned close
// function releases the database connection.
func (g *globals) openService() (*apikeys.Service, func(), error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver == config.DriverMemory {
		return nil, nil, errors.New("keyctl needs a persistent database; the memory driver is configured")
	}

	store, conn, err := db.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}

	svc := apikeys.NewService(store, auth.NewKeyCodec(cfg.Auth.APIKeys.BcryptRounds), clock.System{},
		apikeys.WithMaxPrefixCandidates(cfg.Auth.APIKeys.MaxPrefixCandidates))
	return svc, func() { conn.Close() }, nil
}
