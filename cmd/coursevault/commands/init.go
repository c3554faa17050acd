package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a commented sample configuration to the default location, or
to the path given with --config.

Examples:
  coursevault init
  coursevault init --config /etc/coursevault/coursevault.yaml`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}

	if err := config.WriteSample(path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n\n", path)
	fmt.Println("Next steps:")
	fmt.Println("  1. Set vault.url and vault.credential_hash")
	fmt.Println("  2. Register an archive: coursevault add <archive> --file-id <id>")
	fmt.Println("  3. Schedule transfers:  coursevault run")
	return nil
}
