package commands

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/lifecycle"
)

var runForceUnlock bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process all eligible backup transfers",
	Long: `Run one batch: acquire the process lock, check vault connectivity,
and transfer every eligible archive sequentially.

Designed for cron. The exit code is 0 only when every processed file
completed and nothing was deferred by the run budget.

Examples:
  # Normal scheduled run
  coursevault run

  # Recover from a crashed run that left the lock behind
  coursevault run --force-unlock`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runForceUnlock, "force-unlock", false, "clear a held process lock before starting")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, st, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				logger.Warn("Metrics listener stopped", "error", err)
			}
		}()
		logger.Info("Metrics listener enabled", "listen", cfg.Metrics.Listen)
	}

	summary, err := manager.Run(ctx, lifecycle.RunOptions{ForceUnlock: runForceUnlock})
	if err != nil {
		if errors.Is(err, lifecycle.ErrLockHeld) {
			return fmt.Errorf("%w; use --force-unlock if the previous run crashed", err)
		}
		return err
	}

	fmt.Printf("Processed %d file(s): %d completed, %d failed, %d deferred\n",
		summary.Processed, summary.Completed, summary.Failed, summary.Deferred)

	if !summary.Success() {
		return fmt.Errorf("run incomplete: %d failed, %d deferred", summary.Failed, summary.Deferred)
	}
	return nil
}
