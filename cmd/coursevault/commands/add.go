package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursevault/coursevault/pkg/checksum"
	"github.com/coursevault/coursevault/pkg/chunker"
	"github.com/coursevault/coursevault/pkg/store"
)

var (
	addFileID       int64
	addCourseID     int64
	addCourseName   string
	addCategoryID   int64
	addCategoryName string
	addStartDate    string
)

var addCmd = &cobra.Command{
	Use:   "add <archive>",
	Short: "Register a local archive for transfer",
	Long: `Register a course backup archive so the next run picks it up.

The archive is hashed, sized, and stored as a NOT_STARTED record. Nothing
is sent to the vault until the next run.

Examples:
  coursevault add /data/backups/course-42.mbz --file-id 42 \
    --course-id 42 --course-name "Algorithms" \
    --category-id 9 --category-name "CS" --start-date 2026-02-01`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().Int64Var(&addFileID, "file-id", 0, "local file identifier (required)")
	addCmd.Flags().Int64Var(&addCourseID, "course-id", 0, "course identifier")
	addCmd.Flags().StringVar(&addCourseName, "course-name", "", "course name")
	addCmd.Flags().Int64Var(&addCategoryID, "category-id", 0, "category identifier")
	addCmd.Flags().StringVar(&addCategoryName, "category-name", "", "category name")
	addCmd.Flags().StringVar(&addStartDate, "start-date", "", "course start date (2006-01-02 or RFC3339)")
	_ = addCmd.MarkFlagRequired("file-id")
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("archive not readable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	startDate, err := parseStartDate(addStartDate)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()

	if _, err := st.GetRecord(ctx, addFileID); err == nil {
		return fmt.Errorf("a record for file ID %d already exists", addFileID)
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return err
	}

	contentHash, err := checksum.HashFile(path)
	if err != nil {
		return err
	}

	chunkSize := cfg.Transfer.ChunkSize.Int64()
	totalChunks, err := chunker.TotalChunks(info.Size(), chunkSize)
	if err != nil {
		return err
	}

	record := &store.BackupRecord{
		FileID:          addFileID,
		FilePath:        path,
		Filename:        filepath.Base(path),
		ContentHash:     contentHash,
		PathHash:        checksum.HashBytes([]byte(path)),
		FileSize:        info.Size(),
		ChunkSize:       chunkSize,
		TotalChunks:     totalChunks,
		CourseID:        addCourseID,
		CourseName:      addCourseName,
		CategoryID:      addCategoryID,
		CategoryName:    addCategoryName,
		CourseStartDate: startDate,
		Status:          store.StatusNotStarted,
		TimeCreated:     time.Now(),
	}
	if err := st.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}

	fmt.Printf("Registered %s as file %d (%d bytes, %d chunks of %s)\n",
		record.Filename, record.FileID, record.FileSize, record.TotalChunks, cfg.Transfer.ChunkSize)
	return nil
}

func parseStartDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, checksum.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start date %q", s)
}
