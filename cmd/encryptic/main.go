// Command encryptic synchronises encryptic notes, notebooks, tags and files
// between the local database and a cloud backend.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbgl/encryptic/internal/cloud"
	_ "github.com/vbgl/encryptic/internal/cloud/dropbox"
	_ "github.com/vbgl/encryptic/internal/cloud/remotestorage"
	"github.com/vbgl/encryptic/internal/config"
	"github.com/vbgl/encryptic/internal/logging"
	"github.com/vbgl/encryptic/internal/store"
)

// annotationConfig marks commands that run without an existing config file.
const annotationConfig = "encryptic/config"

var (
	v       = config.New()
	cfg     *config.Config
	logs    *logging.Output
	cfgFile string
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "encryptic",
	Short: "Sync encryptic data with a cloud backend",
	Long: `encryptic keeps the local notes, notebooks, tags and files in step with
a cloud backend using last-write-wins reconciliation.

Configuration is read from --config, or config.yaml in the encryptic config
directory, and can be overridden with ENCRYPTIC_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if cmd.Annotations[annotationConfig] == "optional" {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				path = ""
			}
		}

		var err error
		cfg, err = config.Load(v, path)
		if err != nil {
			return err
		}

		logs, err = logging.Open(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    verbose,
			Quiet:      quiet && cfg.Log.File == "",
		})
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: config.yaml in "+config.DefaultDir()+")")
	flags.String("db", "", "local database path")
	flags.String("profile", "", "profile to sync")
	flags.String("backend", "", "cloud backend (remote-storage or dropbox-like)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "mirror file logs to stderr")
	flags.BoolVarP(&quiet, "quiet", "q", false, "discard logs unless a log file is configured")

	_ = v.BindPFlag("database", flags.Lookup("db"))
	_ = v.BindPFlag("profile", flags.Lookup("profile"))
	_ = v.BindPFlag("backend", flags.Lookup("backend"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the local database and makes sure the schema exists.
func openStore(ctx context.Context) (*store.DB, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// openAdapter builds the configured cloud adapter.
func openAdapter() (cloud.Adapter, error) {
	adapter, err := cloud.New(cfg.BackendName(), cfg.BackendSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", cfg.Backend, err)
	}
	if l, ok := adapter.(interface{ SetLogger(*log.Logger) }); ok {
		l.SetLogger(logs.Logger(cfg.BackendName().String()))
	}
	return adapter, nil
}
