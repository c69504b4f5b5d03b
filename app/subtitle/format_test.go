package subtitle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"subtitle-flow/app/model"
)

func TestComposeSRT(t *testing.T) {
	segments := []model.Segment{
		{Start: 0.0, End: 2.5, Text: "hello world"},
		{Start: 3661.25, End: 3662.0, Text: "an hour later"},
	}

	got := ComposeSRT(segments)
	want := "1\n00:00:00,000 --> 00:00:02,500\nhello world\n\n" +
		"2\n01:01:01,250 --> 01:01:02,000\nan hour later\n\n"
	if got != want {
		t.Errorf("ComposeSRT mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestComposeSRTEmpty(t *testing.T) {
	if got := ComposeSRT(nil); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestValidFormat(t *testing.T) {
	for _, format := range []string{FormatSRT, FormatJSON, FormatText} {
		if !ValidFormat(format) {
			t.Errorf("expected %q to be valid", format)
		}
	}
	for _, format := range []string{"", "vtt", "SRT"} {
		if ValidFormat(format) {
			t.Errorf("expected %q to be invalid", format)
		}
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	doc := &Document{
		Text:     "hello world",
		Language: "en",
		Segments: []model.Segment{{Start: 0, End: 1.5, Text: "hello world"}},
	}

	if err := Write(path, FormatJSON, doc); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if got.Text != doc.Text || got.Language != doc.Language || len(got.Segments) != 1 {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	if err := Write(filepath.Join(dir, "out.vtt"), "vtt", &Document{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
