package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if filepath.Base(db.Path()) != "history.db" {
		t.Errorf("Path: got %q", db.Path())
	}
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	want := filepath.Join(home, ".pipervoice", "history.db")
	if got := DefaultPath(); got != want {
		t.Errorf("DefaultPath: got %q, want %q", got, want)
	}
}

func TestRecordAndGetSynthesis(t *testing.T) {
	db := openTestDB(t)

	rec := &Synthesis{
		Mode:         ModeStream,
		Model:        "en_US-amy-medium.onnx",
		Speaker:      1,
		Text:         "Hello world",
		NumSamples:   22050,
		Chunks:       2,
		SampleRate:   22050,
		DeclaredRate: 33075,
		Speed:        1.5,
		OutputPath:   "test_stream.wav",
		Duration:     1500 * time.Millisecond,
	}
	id, err := db.RecordSynthesis(rec)
	if err != nil {
		t.Fatalf("RecordSynthesis failed: %v", err)
	}
	if id == "" || rec.ID != id {
		t.Fatalf("expected generated id, got %q (rec.ID=%q)", id, rec.ID)
	}

	got, err := db.GetSynthesis(id)
	if err != nil {
		t.Fatalf("GetSynthesis failed: %v", err)
	}
	if got.Mode != ModeStream || got.Model != rec.Model || got.Text != rec.Text {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.NumSamples != 22050 || got.Chunks != 2 || got.DeclaredRate != 33075 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if got.Speed != 1.5 {
		t.Errorf("Speed: got %v, want 1.5", got.Speed)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration: got %v", got.Duration)
	}
}

func TestRecordSynthesis_InvalidMode(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.RecordSynthesis(&Synthesis{Mode: "batch", Model: "m", Text: "t", SampleRate: 1, DeclaredRate: 1}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestGetSynthesis_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetSynthesis("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSyntheses(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		_, err := db.RecordSynthesis(&Synthesis{
			Mode:         ModeSingle,
			Model:        "voice.onnx",
			Text:         text,
			SampleRate:   22050,
			DeclaredRate: 22050,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordSynthesis failed: %v", err)
		}
	}

	all, err := db.ListSyntheses(0)
	if err != nil {
		t.Fatalf("ListSyntheses failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Text != "third" || all[2].Text != "first" {
		t.Errorf("records should be newest first: %q, %q, %q", all[0].Text, all[1].Text, all[2].Text)
	}

	latest, err := db.ListSyntheses(2)
	if err != nil {
		t.Fatalf("ListSyntheses failed: %v", err)
	}
	if len(latest) != 2 {
		t.Errorf("limit 2: got %d records", len(latest))
	}

	n, err := db.CountSyntheses()
	if err != nil || n != 3 {
		t.Errorf("CountSyntheses = %d, %v; want 3", n, err)
	}
}
