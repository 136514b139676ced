package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cms-go/internal/app"
	"cms-go/internal/cms"
	"cms-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	configPath string
	verbose    bool
	assumeYes  bool
)

// loadConfig reads the config from --config or the default location.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		defaults, err := app.GetDefaults()
		if err != nil {
			return nil, "", fmt.Errorf("getting defaults: %w", err)
		}
		path = defaults.ConfigPath
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, path, nil
}

// newApp reads the config and creates a CMSApp. The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*app.CMSApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewCMSApp(cmd.Context(), cfg, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// report prints the outcome of a mutating action. A failed outcome is
// returned as the command error.
func report(action string, err error, warnings []cms.OrphanedBlob) error {
	out := cms.Describe(action, err, warnings)
	for _, w := range out.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if !out.OK {
		if out.Field != "" {
			return fmt.Errorf("%s: %s", out.Field, out.Message)
		}
		return fmt.Errorf("%s", out.Message)
	}
	fmt.Println(out.Message)
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "cms",
	Short:        "Municipal website content manager",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path := defaults.ConfigPath
		if configPath != "" {
			path = configPath
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Println("Next: cms db migrate")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		adminToken := "(disabled)"
		if cfg.HTTP.AdminToken != "" {
			adminToken = "(set)"
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Object Store:  %s\n", cfg.ObjectStore.Type)
		fmt.Printf("Database:      %s\n", cfg.Database.Type)
		fmt.Printf("Sync:          %s (max %d subscriptions)\n", cfg.Sync.Type, cfg.Sync.MaxSubscriptions)
		fmt.Printf("Sessions:      %s (ttl %s)\n", cfg.Session.Type, cfg.Session.TTL())
		fmt.Printf("HTTP Addr:     %s\n", cfg.HTTP.Addr)
		fmt.Printf("Admin Token:   %s\n", adminToken)
		fmt.Printf("Snapshot Key:  %s\n", cfg.Snapshot.PublicKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata store",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cmd.Context(), cfg.Database); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase for the snapshot key: ", true)
		if err != nil {
			return err
		}
		if err := a.Keygen(passphrase); err != nil {
			return err
		}
		fmt.Println("Snapshot keys created. Keep the passphrase safe; restores need it.")
		return nil
	},
}

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Upload a sealed copy of the metadata store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var key string
		err = a.Track(cmd.Context(), "Snapshot", "", func() error {
			var err error
			key, err = a.Snapshot(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot stored at %s\n", key)
		return nil
	},
}

var dbSnapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		snaps, err := a.Snapshots(cmd.Context())
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, s := range snaps {
			fmt.Printf("%s  %10d  %s\n", s.ModTime.Format("2006-01-02 15:04:05"), s.Size, s.Key)
		}
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT DEST",
	Short: "Decrypt a snapshot into a new SQLite file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase for the snapshot key: ", false)
		if err != nil {
			return err
		}
		if err := a.Restore(cmd.Context(), args[0], args[1], passphrase); err != nil {
			return err
		}
		fmt.Printf("Restored %s to %s\n", args[0], args[1])
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.NewCMSApp(ctx, cfg, verbose)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		if err := a.ValidateStore(ctx); err != nil {
			return fmt.Errorf("object store not usable: %w", err)
		}
		return a.Serve(ctx)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the audit log of mutating operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.Service().History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Name,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $CMS_CONFIG_PATH or ~/.config/cms.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug records")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Confirm destructive actions without asking")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbKeygenCmd)
	dbCmd.AddCommand(dbSnapshotCmd)
	dbCmd.AddCommand(dbSnapshotsCmd)
	dbCmd.AddCommand(dbRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
