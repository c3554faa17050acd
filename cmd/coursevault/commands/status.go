package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/pkg/config"
)

var statusRemote bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show transfer records",
	Long: `List every known transfer record with its progress and state.

With --remote, the vault's own backup listing is shown instead of the
local records.

Examples:
  coursevault status
  coursevault status --remote`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusRemote, "remote", false, "list the vault's backups instead of local records")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if statusRemote {
		return printRemoteStatus(cmd, cfg)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	records, err := st.ListRecords(cmd.Context())
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No transfer records.")
		return nil
	}

	table := newTable("FILE ID", "FILENAME", "STATUS", "PROGRESS", "RETRIES", "SIZE", "REMOTE ID")
	for _, r := range records {
		table.Append([]string{
			strconv.FormatInt(r.FileID, 10),
			r.Filename,
			r.Status.String(),
			fmt.Sprintf("%d/%d", r.ChunkNumber, r.TotalChunks),
			strconv.Itoa(r.ChunkRetries),
			strconv.FormatInt(r.FileSize, 10),
			r.UniqueID,
		})
	}
	table.Render()
	return nil
}

func printRemoteStatus(cmd *cobra.Command, cfg *config.Config) error {
	manager, st, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	downloads, err := manager.Downloads(cmd.Context())
	if err != nil {
		return err
	}
	if len(downloads) == 0 {
		fmt.Println("The vault holds no backups.")
		return nil
	}

	table := newTable("REMOTE ID", "FILENAME", "COURSE", "SIZE", "COMPLETED", "CREATED")
	for _, d := range downloads {
		table.Append([]string{
			d.UUID,
			d.Filename,
			d.CourseName,
			strconv.FormatInt(d.FileSize, 10),
			strconv.FormatBool(d.IsCompleted),
			d.TimeCreated,
		})
	}
	table.Render()

	fmt.Printf("\n%d backup(s) in the vault\n", len(downloads))
	return nil
}

// newTable returns a borderless table in the house style.
func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
