package download

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	xlog "nomark/internal/log"
	"nomark/internal/media"
)

func testResult(name, body string) media.ProviderResult {
	return media.ProviderResult{
		Body:              []byte(body),
		SuggestedFilename: name,
		MediaType:         media.MP4,
		Provider:          "musicaldown",
	}
}

func TestSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/videos"

	path, err := Save(fs, testResult("tiktok_123.mp4", "mp4-bytes"), dir)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if want := filepath.Join(dir, "tiktok_123.mp4"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Errorf("content = %q, want mp4-bytes", data)
	}

	// No temp files left behind
	entries, _ := afero.ReadDir(fs, dir)
	if len(entries) != 1 {
		t.Errorf("expected 1 file in %s, got %d", dir, len(entries))
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()

	if _, err := Save(fs, testResult("tiktok_1.mp4", "old"), "/out"); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	path, err := Save(fs, testResult("tiktok_1.mp4", "new"), "/out")
	if err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	data, _ := afero.ReadFile(fs, path)
	if string(data) != "new" {
		t.Errorf("content = %q, want new", data)
	}
}

func TestSaveSanitizesFilename(t *testing.T) {
	fs := afero.NewMemMapFs()

	path, err := Save(fs, testResult("../../etc/passwd", "x"), "/out")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if filepath.Dir(path) != "/out" {
		t.Errorf("file escaped output dir: %q", path)
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	if _, err := Save(afero.NewMemMapFs(), testResult("tiktok_1.mp4", ""), "/out"); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestSaveOnDisk(t *testing.T) {
	dir := t.TempDir()

	path, err := Save(afero.NewOsFs(), testResult("tiktok_9.mp4", "disk"), dir)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestSaveLogsPath(t *testing.T) {
	var buf bytes.Buffer
	xlog.Configure(xlog.Config{Output: &buf})
	t.Cleanup(func() { xlog.Configure(xlog.Config{}) })

	path, err := Save(afero.NewMemMapFs(), testResult("tiktok_5.mp4", "abc"), "/out")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	if entry[xlog.FieldPath] != path {
		t.Errorf("path = %v, want %s", entry[xlog.FieldPath], path)
	}
	if entry[xlog.FieldComponent] != "download" {
		t.Errorf("component = %v, want download", entry[xlog.FieldComponent])
	}
	if entry["message"] != "saved video" {
		t.Errorf("message = %v, want saved video", entry["message"])
	}
}
