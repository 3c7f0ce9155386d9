package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv(dataDirEnv, dir)

	if got := GetDataDir(); got != dir {
		t.Fatalf("unexpected data dir: got=%q want=%q", got, dir)
	}
	if got := GetDBPath(); got != filepath.Join(dir, dbFileName) {
		t.Fatalf("unexpected db path: got=%q", got)
	}

	if err := EnsureDataDirs(); err != nil {
		t.Fatalf("EnsureDataDirs failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("data dir was not created: %v", err)
	}
}
