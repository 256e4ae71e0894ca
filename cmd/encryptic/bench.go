package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbgl/encryptic/internal/loadtest"
	"github.com/vbgl/encryptic/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure sync pass latency on generated data",
	Long: `Populate a scratch database and an in-memory synced folder with
divergent records, then time a full pass while concurrent readers query the
local store, followed by a second pass that must find nothing to do.

Your own database and backend are not touched.

Examples:
  encryptic bench
  encryptic bench --records 5000 --readers 20
  encryptic bench --json`,
	Annotations: map[string]string{annotationConfig: "optional"},
	RunE: func(cmd *cobra.Command, args []string) error {
		records, _ := cmd.Flags().GetInt("records")
		readers, _ := cmd.Flags().GetInt("readers")
		queries, _ := cmd.Flags().GetInt("queries")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if records <= 0 || readers <= 0 || queries <= 0 || concurrency <= 0 {
			return fmt.Errorf("--records, --readers, --queries and --concurrency must be positive")
		}

		ctx := cmd.Context()
		dir, err := os.MkdirTemp("", "encryptic-bench-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		opts := loadtest.DefaultOptions()
		opts.Records = records

		if !jsonOutput {
			fmt.Printf("%s Populating %d records per collection...\n", ui.RenderAccent("→"), records)
		}
		start := time.Now()
		fixture, err := loadtest.NewFixture(ctx, filepath.Join(dir, "bench.db"), opts)
		if err != nil {
			return err
		}
		defer fixture.Close()
		populate := time.Since(start)

		type passResult struct {
			first  time.Duration
			second time.Duration
			err    error
		}
		done := make(chan passResult, 1)
		go func() {
			var res passResult
			first, err := fixture.RunPass(ctx, concurrency)
			res.first, res.err = first.Duration, err
			if err == nil {
				second, err := fixture.RunPass(ctx, concurrency)
				res.second, res.err = second.Duration, err
			}
			done <- res
		}()

		reads, readErr := fixture.RunConcurrentReads(ctx, readers, queries)
		res := <-done
		if res.err != nil {
			return fmt.Errorf("pass failed: %w", res.err)
		}
		if readErr != nil {
			return fmt.Errorf("reads failed: %w", readErr)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"records_per_collection": records,
				"populate":               populate,
				"first_pass":             res.first,
				"second_pass":            res.second,
				"expected":               fixture.Expected(),
				"reads":                  reads,
			})
		}

		fmt.Printf("\n%s Benchmark complete\n\n", ui.RenderPass("✓"))
		fmt.Printf("  Populate:     %s\n", ui.FormatDuration(populate))
		fmt.Printf("  First pass:   %s\n", ui.FormatDuration(res.first))
		fmt.Printf("  Second pass:  %s\n", ui.FormatDuration(res.second))
		fmt.Printf("\nLocal reads (%d readers):\n", readers)
		reads.Print(os.Stdout)
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("records", 1000, "records per collection")
	benchCmd.Flags().Int("readers", 10, "concurrent local readers")
	benchCmd.Flags().Int("queries", 20, "queries per reader")
	benchCmd.Flags().Int("concurrency", 8, "record writes in flight per collection")
	benchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(benchCmd)
}
