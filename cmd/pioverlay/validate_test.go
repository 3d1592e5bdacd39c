package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/goodtune/pioverlay/internal/config"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
detection:
  battery: true
  wfi: true
icons:
  size: 32
  colour: red
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys: %v", err)
	}
	want := []string{"detection.wfi", "icons.colour"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unknown keys = %v, want %v", got, want)
	}
}

func TestDumpConfigHighlightsChanges(t *testing.T) {
	color.NoColor = true

	cfg := config.Defaults()
	cfg.Icons.Size = 48
	cfg.Storage.Redis.Password = "hunter2"

	var buf bytes.Buffer
	dumpConfig(&buf, cfg, config.Defaults(), []string{"icons.colour"})
	out := buf.String()

	for _, want := range []string{
		"  size = 48  (modified from default: 24)",
		"  horizontal = right\n",
		"    password = ***REDACTED***  (modified from default: )",
		"  icons.colour = (unknown key - check for typos)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q", want)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("dump leaked the redis password")
	}
}
