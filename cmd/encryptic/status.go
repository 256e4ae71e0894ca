package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/store"
	"github.com/vbgl/encryptic/internal/sync"
	"github.com/vbgl/encryptic/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local record counts and recent sync passes",
	Long: `Display the state of the local database.

Shows:
  - Database location and size
  - Number of records per collection
  - The most recent sync passes and their outcome

--since accepts a duration ("90m") or a phrase ("yesterday", "last monday").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		sinceText, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceText != "" {
			var err error
			if since, err = parseSince(sinceText, time.Now()); err != nil {
				return err
			}
		}

		info, err := os.Stat(cfg.Database)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Local database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'encryptic sync' to create it\n\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to stat database: %w", err)
		}

		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := db.CountByCollection(ctx)
		if err != nil {
			return err
		}
		var passes []store.PassRecord
		if since.IsZero() {
			passes, err = db.RecentPasses(ctx, limit)
		} else {
			passes, err = db.PassesSince(ctx, since, limit)
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"database": db.Path(),
				"profile":  cfg.Profile,
				"backend":  cfg.Backend,
				"records":  counts,
				"passes":   passes,
			})
		}

		lines := []string{
			ui.RenderAccent("Encryptic Sync Status"),
			"",
			fmt.Sprintf("Location: %s (%s)", db.Path(), formatSize(info.Size())),
			fmt.Sprintf("Profile:  %s on %s", cfg.Profile, cfg.Backend),
		}
		if url := dashboardURL(); url != "" {
			lines = append(lines, fmt.Sprintf("Dashboard: %s", url))
		}
		lines = append(lines, "")
		for _, c := range record.Ordered() {
			lines = append(lines, fmt.Sprintf("%-10s %d", c.String()+":", counts[c]))
		}
		fmt.Println()
		fmt.Println(ui.RenderBox(lines...))
		fmt.Println()

		if len(passes) == 0 {
			fmt.Printf("%s No sync passes recorded yet\n\n", ui.RenderDim("·"))
			return nil
		}
		fmt.Printf("Recent passes:\n")
		for _, p := range passes {
			fmt.Println("  " + formatPass(p))
		}
		fmt.Println()
		return nil
	},
}

func formatPass(p store.PassRecord) string {
	when := p.FinishedAt.Local().Format("2006-01-02 15:04:05")
	took := ui.FormatDuration(p.FinishedAt.Sub(p.StartedAt))

	if p.Status != sync.StatusSuccess {
		return fmt.Sprintf("%s %s %s after %s: %s", ui.RenderFail("✗"), when, p.Status, took, p.Error)
	}

	line := fmt.Sprintf("%s %s pulled %d, pushed %d in %s", ui.RenderPass("✓"), when, p.RemoteChanges, p.LocalChanges, took)
	if p.NextInterval > 0 {
		line += ui.RenderDim(fmt.Sprintf(" (next in %s)", ui.FormatDuration(p.NextInterval)))
	}
	return line
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

// parseSince reads a Go duration, counted back from now, or a natural
// language date.
func parseSince(text string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(text); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: no date found", text)
	}
	return r.Time, nil
}

// dashboardURL is shown when a dashboard port is configured.
func dashboardURL() string {
	if cfg.Dashboard.Port <= 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port))
}

func init() {
	statusCmd.Flags().IntP("limit", "n", 5, "number of recent passes to show")
	statusCmd.Flags().Bool("json", false, "output as JSON")
	statusCmd.Flags().String("since", "", "only show passes started after this time")
	rootCmd.AddCommand(statusCmd)
}
