package store

import (
	"errors"
	"io/fs"
	"os"
)

// sqliteSideFiles are the suffixes SQLite uses next to the main database
// file in WAL mode.
var sqliteSideFiles = []string{"", "-wal", "-shm"}

// SQLiteDiskUsage returns the bytes used by the database at dbPath,
// including its WAL and shared-memory files. Files that do not exist
// count as zero.
func SQLiteDiskUsage(dbPath string) (int64, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return 0, nil
	}
	var total int64
	for _, suffix := range sqliteSideFiles {
		info, err := os.Stat(dbPath + suffix)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
