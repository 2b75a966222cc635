package record_test

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/record"
)

func TestCSVRecorder_ChunkingAndShutdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	rb := record.NewRecordable("t", []string{"seq", "val"}, nil)
	rec, err := record.NewCSVRecorder(rb, path, 4, nil)
	if err != nil {
		t.Fatalf("NewCSVRecorder: %v", err)
	}
	if err := rec.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := rb.PushRecord(map[string]any{"seq": i, "val": float64(i) * 1.5}); err != nil {
			t.Fatalf("PushRecord(%d): %v", i, err)
		}
	}
	rec.Shutdown()

	lines := readLines(t, path)
	if len(lines) != 11 { // 1 header + 10 rows
		t.Fatalf("expected 11 lines (1 header + 10 rows), got %d: %v", len(lines), lines)
	}
	if lines[0] != "seq,val" {
		t.Errorf("header = %q, want %q", lines[0], "seq,val")
	}
	for i := 0; i < 10; i++ {
		want := strconv.Itoa(i) + "," + strconv.FormatFloat(float64(i)*1.5, 'g', -1, 64)
		if lines[i+1] != want {
			t.Errorf("row[%d] = %q, want %q", i, lines[i+1], want)
		}
	}
}

func TestCSVRecorder_OverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(path, []byte("stale data\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rb := record.NewRecordable("t", []string{"a"}, nil)
	rec, err := record.NewCSVRecorder(rb, path, 4, nil)
	if err != nil {
		t.Fatalf("NewCSVRecorder: %v", err)
	}
	if err := rec.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_ = rb.PushRecord(map[string]any{"a": 1})
	rec.Shutdown()

	lines := readLines(t, path)
	for _, l := range lines {
		if strings.Contains(l, "stale data") {
			t.Fatalf("expected stale data to be overwritten, found: %v", lines)
		}
	}
}

func TestCSVRecorder_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "adir")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}

	rb := record.NewRecordable("t", []string{"a"}, nil)
	_, err := record.NewCSVRecorder(rb, target, 4, nil)
	if err == nil {
		t.Fatal("expected error constructing CSVRecorder over a directory")
	}
}

func TestCSVRecorder_FlushBeforeFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	rb := record.NewRecordable("t", []string{"a"}, nil)
	rec, err := record.NewCSVRecorder(rb, path, 100, nil)
	if err != nil {
		t.Fatalf("NewCSVRecorder: %v", err)
	}
	if err := rec.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_ = rb.PushRecord(map[string]any{"a": 1})
	rec.Flush()
	rec.Shutdown()

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row after manual flush, got %d: %v", len(lines), lines)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
