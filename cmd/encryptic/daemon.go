package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/cloud/dropbox"
	"github.com/vbgl/encryptic/internal/daemon"
	"github.com/vbgl/encryptic/internal/dashboard"
	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/store"
	"github.com/vbgl/encryptic/internal/sync"
	"github.com/vbgl/encryptic/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync scheduler in the foreground",
	Long: `Run the sync watchdog until interrupted.

The first pass runs shortly after start. After each pass the next one is
scheduled between --interval-min and --interval-max: the interval shrinks
while the backend keeps delivering changes and grows while it is quiet.

Optional extras:
  --port 8080   serve a WebSocket dashboard of sync activity
  --watch       for the dropbox-like backend, sync as soon as the desktop
                client drops new record files into the folder`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		overlap, err := daemon.ParseOverlap(cfg.Overlap)
		if err != nil {
			return err
		}
		intervalMin, _ := cmd.Flags().GetDuration("interval-min")
		intervalMax, _ := cmd.Flags().GetDuration("interval-max")

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		adapter, err := openAdapter()
		if err != nil {
			return err
		}

		emitter := sync.MultiEmitter{
			store.NewHistoryEmitter(db, logs.Logger("store")),
			sync.LogEmitter{Logger: logs.Logger("sync")},
		}

		if cfg.Dashboard.Port > 0 {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Host:   cfg.Dashboard.Host,
				Logger: logs.Logger("dashboard"),
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer server.Stop()

			emitter = append(emitter, server)
			fmt.Printf("   Dashboard: http://%s (ws://%s/ws)\n", server.GetAddr(), server.GetAddr())
		}

		syncer := sync.New(db, adapter, &sync.Config{
			Emitter: emitter,
			Logger:  logs.Logger("sync"),
		})
		sched := daemon.New(adapter, syncer, daemon.StaticProfile(cfg.Profile), &daemon.Config{
			IntervalMin: intervalMin,
			IntervalMax: intervalMax,
			Overlap:     overlap,
			Emitter:     emitter,
			Logger:      logs.Logger("daemon"),
		})
		defer sched.Close()

		if cfg.Watch {
			watcher, err := startWatcher(adapter, sched)
			if err != nil {
				return err
			}
			if watcher != nil {
				defer watcher.Stop()
			}
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("→"))
		fmt.Printf("   Profile: %s\n", cfg.Profile)
		fmt.Printf("   Backend: %s\n", cfg.Backend)
		fmt.Printf("   Database: %s\n", db.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		sched.Start()
		<-ctx.Done()

		fmt.Println("\nShutting down sync daemon...")
		sched.Close()

		stat := sched.Stat()
		fmt.Printf("%s Daemon stopped (last interval %s)\n", ui.RenderPass("✓"), ui.FormatDuration(stat.Interval))
		return nil
	},
}

// startWatcher watches the collection folders of the dropbox-like backend.
// Other backends have nothing to watch and return a nil watcher.
func startWatcher(adapter cloud.Adapter, sched *daemon.Scheduler) (*daemon.ChangeWatcher, error) {
	folder, ok := adapter.(*dropbox.Adapter)
	if !ok {
		fmt.Printf("%s --watch only applies to the %s backend\n", ui.RenderWarn("⚠"), cloud.BackendDropbox)
		return nil, nil
	}

	dirs := make([]string, 0, len(record.Ordered()))
	for _, c := range record.Ordered() {
		dir := folder.CollectionDir(cfg.Profile, c)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		dirs = append(dirs, dir)
	}

	watcher, err := daemon.NewChangeWatcher(sched.Start, &daemon.WatcherConfig{
		Logger: logs.Logger("watch"),
	})
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(dirs...); err != nil {
		return nil, err
	}
	fmt.Printf("   Watching: %s\n", folder.Root())
	return watcher, nil
}

func init() {
	defaults := daemon.DefaultConfig()
	daemonCmd.Flags().Duration("interval-min", defaults.IntervalMin, "shortest watchdog interval")
	daemonCmd.Flags().Duration("interval-max", defaults.IntervalMax, "longest watchdog interval")
	daemonCmd.Flags().IntP("port", "p", 0, "dashboard port (0 disables the dashboard)")
	daemonCmd.Flags().Bool("watch", false, "sync on folder changes (dropbox-like backend)")

	_ = v.BindPFlag("dashboard.port", daemonCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("watch", daemonCmd.Flags().Lookup("watch"))

	rootCmd.AddCommand(daemonCmd)
}

