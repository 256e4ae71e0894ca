package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbgl/encryptic/internal/daemon"
	"github.com/vbgl/encryptic/internal/store"
	"github.com/vbgl/encryptic/internal/sync"
	"github.com/vbgl/encryptic/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass and exit",
	Long: `Run a single sync pass over notes, notebooks, tags and files.

For each collection the newer side of every record wins: remote records are
written to the local database first, then local records are pushed. The pass
stops at the first collection that fails.

The outcome is recorded in the pass history shown by 'encryptic status'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		adapter, err := openAdapter()
		if err != nil {
			return err
		}

		recorder := &sync.Recorder{}
		emitter := sync.MultiEmitter{
			recorder,
			store.NewHistoryEmitter(db, logs.Logger("store")),
			sync.LogEmitter{Logger: logs.Logger("sync")},
		}

		syncer := sync.New(db, adapter, &sync.Config{
			Emitter: emitter,
			Logger:  logs.Logger("sync"),
		})
		sched := daemon.New(adapter, syncer, daemon.StaticProfile(cfg.Profile), &daemon.Config{
			Emitter: emitter,
			Logger:  logs.Logger("daemon"),
		})
		defer sched.Close()

		fmt.Printf("%s Syncing profile %s with %s...\n", ui.RenderAccent("→"), cfg.Profile, cfg.Backend)

		stopped, err := sched.RunOnce(ctx)
		if sync.IsKind(err, sync.KindAuth) {
			fmt.Printf("%s Not authenticated with %s\n", ui.RenderFail("✗"), cfg.Backend)
			fmt.Printf("   Check the backend settings with 'encryptic config show'\n")
			return err
		}

		printPass(stopped, len(recorder.Applied()))
		return err
	},
}

func printPass(stopped sync.PassStopped, applied int) {
	for _, r := range stopped.Collections {
		fmt.Printf("   %-10s %s pulled, %s pushed %s\n",
			r.Collection,
			ui.FormatCount(r.RemoteToLocal, "record"),
			ui.FormatCount(r.LocalToRemote, "record"),
			ui.RenderDim(ui.FormatDuration(r.Duration)))
	}

	if stopped.Status == sync.StatusSuccess {
		fmt.Printf("%s Sync complete in %s (%s applied locally)\n",
			ui.RenderPass("✓"), ui.FormatDuration(stopped.Duration), ui.FormatCount(applied, "change"))
		return
	}

	msg := "unknown error"
	if stopped.Err != nil {
		msg = stopped.Err.Error()
	}
	fmt.Printf("%s Sync failed: %s\n", ui.RenderFail("✗"), msg)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
