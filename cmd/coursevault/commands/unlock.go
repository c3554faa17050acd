package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/pkg/lock"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Forcibly release the process lock",
	Long: `Clear the run lock left behind by a crashed run.

Only use this when no run is actually executing: a released lock lets the
next run mutate transfer state concurrently with a survivor.`,
	RunE: runUnlock,
}

func runUnlock(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runLock := lock.New(st, st, cfg.Transfer.LockStaleness)

	held, err := runLock.HolderTimestamp(cmd.Context())
	if err != nil {
		return err
	}
	if held.IsZero() {
		fmt.Println("The lock is not held.")
		return nil
	}

	if err := runLock.ForceRelease(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("Released lock held since %s\n", held.Format(time.RFC3339))
	return nil
}
