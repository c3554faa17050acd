package commands

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/devserver"
)

var (
	devListen     string
	devCredential string
	devSecret     string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory vault for development",
	Long: `Serve the vault wire protocol from memory.

All state is lost on exit. Point coursevault at it with:
  vault:
    url: http://localhost:8900
    credential_hash: dev`,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devListen, "listen", "localhost:8900", "listen address")
	devserverCmd.Flags().StringVar(&devCredential, "credential-hash", "dev", "accepted credential hash")
	devserverCmd.Flags().StringVar(&devSecret, "jwt-secret", "dev-secret", "session token signing secret")
}

func runDevserver(cmd *cobra.Command, args []string) error {
	vault := devserver.New(devCredential, devSecret)

	logger.Info("Dev vault listening", "address", devListen)
	return http.ListenAndServe(devListen, vault.Handler())
}
