// Command adminctl is the operator CLI for migrations, bootstrapping the
// admin directory and minting development tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"staffdesk.org/internal/config"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/store/pg"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "adminctl",
	Short:         "Operate the staffdesk admin back office",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = obs.InitLogger(cfg.Log.Level)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("STAFFDESK_CONFIG"), "config file path")
	rootCmd.AddCommand(migrateCmd, bootstrapCmd, grantCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// openStore connects to the database named in the config.
func openStore() (*pg.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.PG.DSN == "" {
		return nil, fmt.Errorf("missing DSN: set pg.dsn or %sPG_DSN", config.EnvPrefix)
	}
	return pg.Open(cfg.PG.DSN)
}
