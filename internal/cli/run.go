package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/pipeline"
	"github.com/forPelevin/hlshorts/internal/types"
)

const runTimeout = 3 * time.Hour

func newRunCommand(g *globals) *cobra.Command {
	var (
		outDir     string
		maxShorts  int
		noAnalysis bool
	)
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Generate shorts from a local video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("out") {
				if cfg.Paths.OutDir, err = filepath.Abs(outDir); err != nil {
					return err
				}
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			absIn, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			p, err := pipeline.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			out, runErr := p.Run(ctx, pipeline.Request{
				InputPath:   absIn,
				MaxShorts:   maxShorts,
				UseAnalysis: !noAnalysis,
			})
			if out.OutDir != "" {
				printResult(cmd.OutOrStdout(), out.OutDir, out.Generation)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "Output directory")
	cmd.Flags().IntVar(&maxShorts, "max-shorts", 0, "Maximum number of shorts (default from config)")
	cmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "Skip LLM analysis and use fixed 45s windows")
	return cmd
}

func printResult(w io.Writer, outDir string, res types.GenerationResult) {
	rows := make([][]string, 0, len(res.OutputFiles))
	for i, a := range res.OutputFiles {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			a.Filename,
			a.Title,
			fmt.Sprintf("%.1fs", a.Duration),
			humanBytes(a.Size),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable(w,
			[]string{"#", "File", "Title", "Duration", "Size"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
		))
	}
	fmt.Fprintf(w, "%d shorts written to %s\n", res.ShortsCreated, outDir)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
