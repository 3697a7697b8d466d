package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/gcal-analyzer/internal/analysis"
)

var window = analysis.Window{
	Start: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC),
}

var sampleEvents = []analysis.Event{
	{
		Name:      "Customer sync",
		Start:     analysis.EventTime{DateTime: "2024-04-03T10:00:00Z"},
		End:       analysis.EventTime{DateTime: "2024-04-03T11:00:00Z"},
		Attendees: []analysis.Attendee{{Email: "a@corp.example"}, {Email: "b@customer.example"}},
	},
	{
		Name:  "Offsite",
		Start: analysis.EventTime{Date: "2024-05-02"},
		End:   analysis.EventTime{Date: "2024-05-03"},
	},
}

func TestSaveAndLoad(t *testing.T) {
	c := New(t.TempDir())

	if err := c.Save("primary", window, sampleEvents); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(c.GetFilePath())
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}

	events, err := c.Load("primary", window)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Attendees[1].Email != "b@customer.example" || events[1].Start.Date != "2024-05-02" {
		t.Errorf("events did not round trip: %+v", events)
	}

	snapshot, err := c.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if snapshot.FetchedAt.IsZero() || snapshot.CalendarID != "primary" {
		t.Errorf("unexpected snapshot metadata %+v", snapshot)
	}
}

func TestLoadRequiresMatchingKey(t *testing.T) {
	c := New(t.TempDir())

	if _, err := c.Load("primary", window); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot for empty cache, got %v", err)
	}

	if err := c.Save("primary", window, sampleEvents); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := c.Load("team@corp.example", window); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot for other calendar, got %v", err)
	}

	other := analysis.Window{Start: window.Start, End: window.End.Add(time.Second)}
	if _, err := c.Load("primary", other); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot for other window, got %v", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	c := New(t.TempDir())

	if err := c.Save("primary", window, sampleEvents); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := c.Save("primary", window, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	events, err := c.FetchEvents(context.Background(), "primary", window)
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("expected an empty, non-nil event list, got %#v", events)
	}
}

func TestCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	if err := os.WriteFile(filepath.Join(dir, snapshotFile), []byte("{not json"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := c.Load("primary", window)
	if err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestGetDefaultCacheDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := GetDefaultCacheDir()
	if err != nil {
		t.Fatalf("GetDefaultCacheDir failed: %v", err)
	}
	if dir != filepath.Join(home, ".cache", "gcal-analyzer") {
		t.Errorf("unexpected cache dir %s", dir)
	}
}
