package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/pkg/lifecycle"
)

var holdCmd = &cobra.Command{
	Use:   "hold <file-id>",
	Short: "Pause a transfer",
	Long: `Put a record ON_HOLD. Held records keep their progress and are
skipped by runs until resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: controlRunE("held", func(ctx context.Context, m *lifecycle.Manager, id int64) error {
		return m.SetOnHold(ctx, id)
	}),
}

var resumeCmd = &cobra.Command{
	Use:   "resume <file-id>",
	Short: "Resume a held transfer",
	Args:  cobra.ExactArgs(1),
	RunE: controlRunE("resumed", func(ctx context.Context, m *lifecycle.Manager, id int64) error {
		return m.Resume(ctx, id)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <file-id>",
	Short: "Cancel a transfer permanently",
	Long: `Cancel a record. Cancelled records are never selected again; the
remote side is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: controlRunE("cancelled", func(ctx context.Context, m *lifecycle.Manager, id int64) error {
		return m.Cancel(ctx, id)
	}),
}

// controlRunE builds the shared RunE for the status-setter verbs.
func controlRunE(verb string, op func(context.Context, *lifecycle.Manager, int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		fileID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file ID %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, st, err := buildManager(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := op(cmd.Context(), manager, fileID); err != nil {
			return err
		}

		fmt.Printf("File %d %s\n", fileID, verb)
		return nil
	}
}
