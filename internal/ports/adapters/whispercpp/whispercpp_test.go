package whispercpp

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestParseOutput(t *testing.T) {
	t.Parallel()

	b := []byte(`{
  "result": {"language": "es"},
  "transcription": [
    {"timestamps": {"from": "00:00:00,000", "to": "00:00:02,500"}, "offsets": {"from": 0, "to": 2500}, "text": " Hola a todos."},
    {"offsets": {"from": 2500, "to": 3000}, "text": "  "},
    {"offsets": {"from": 3000, "to": 7250}, "text": " Bienvenidos."}
  ]
}`)
	tr, err := parseOutput(b)
	if err != nil {
		t.Fatalf("parseOutput: %v", err)
	}
	if tr.Language != "es" || tr.Text != "Hola a todos. Bienvenidos." {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
	if len(tr.Segments) != 3 || tr.Segments[2].Start != 3 || tr.Segments[2].End != 7.25 || tr.Segments[0].Text != "Hola a todos." {
		t.Fatalf("unexpected segments: %+v", tr.Segments)
	}

	if _, err := parseOutput([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTranscribe_RunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "whisper.sh")
	script := "#!/bin/sh\n" +
		"while [ $# -gt 0 ]; do if [ \"$1\" = \"-of\" ]; then out=\"$2\"; fi; shift; done\n" +
		"printf '%s' '{\"result\":{\"language\":\"en\"},\"transcription\":[{\"offsets\":{\"from\":0,\"to\":1000},\"text\":\" hi\"}]}' > \"$out.json\"\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	tr, err := New(bin, "model.bin").Transcribe(context.Background(), filepath.Join(dir, "a.wav"), dir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hi" || tr.Language != "en" {
		t.Fatalf("unexpected transcript: %+v", tr)
	}

	if _, err := New(filepath.Join(dir, "missing"), "m").Transcribe(context.Background(), "a.wav", dir); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}
