package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/gcal-analyzer/internal/analysis"
	"github.com/bnema/gcal-analyzer/internal/config"
	"github.com/bnema/gcal-analyzer/internal/logger"
)

const snapshotFile = "events.json"

// ErrNoSnapshot is returned when no snapshot exists for the requested
// calendar and window.
var ErrNoSnapshot = errors.New("no cached events for this calendar and window")

// Snapshot is the raw event list of the last online run.
type Snapshot struct {
	CalendarID  string           `json:"calendar_id"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	FetchedAt   time.Time        `json:"fetched_at"`
	Events      []analysis.Event `json:"events"`
}

func (s *Snapshot) Window() analysis.Window {
	return analysis.Window{Start: s.WindowStart, End: s.WindowEnd}
}

func (s *Snapshot) matches(calendarID string, window analysis.Window) bool {
	return s.CalendarID == calendarID &&
		s.WindowStart.Equal(window.Start) &&
		s.WindowEnd.Equal(window.End)
}

// Cache stores a single snapshot in the cache directory. Each Save
// overwrites the previous one.
type Cache struct {
	cacheDir string
	filePath string
}

func New(cacheDir string) *Cache {
	if cacheDir == "" {
		if defaultDir, err := GetDefaultCacheDir(); err == nil {
			cacheDir = defaultDir
		} else {
			cacheDir = filepath.Join(os.TempDir(), config.AppName)
		}
	}

	return &Cache{
		cacheDir: cacheDir,
		filePath: filepath.Join(cacheDir, snapshotFile),
	}
}

func (c *Cache) Save(calendarID string, window analysis.Window, events []analysis.Event) error {
	if err := os.MkdirAll(c.cacheDir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	snapshot := Snapshot{
		CalendarID:  calendarID,
		WindowStart: window.Start.UTC(),
		WindowEnd:   window.End.UTC(),
		FetchedAt:   time.Now().UTC(),
		Events:      events,
	}
	if snapshot.Events == nil {
		snapshot.Events = []analysis.Event{}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	// attendee addresses are personal data
	if err := os.WriteFile(c.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	logger.Debug("saved event snapshot", "path", c.filePath, "event_count", len(events))
	return nil
}

// Info returns the stored snapshot whatever its key, or ErrNoSnapshot.
func (c *Cache) Info() (*Snapshot, error) {
	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache: %w", err)
	}
	return &snapshot, nil
}

// Load returns the snapshot events for calendarID and window.
func (c *Cache) Load(calendarID string, window analysis.Window) ([]analysis.Event, error) {
	snapshot, err := c.Info()
	if err != nil {
		return nil, err
	}
	if !snapshot.matches(calendarID, window) {
		logger.Debug("cached snapshot is for another calendar or window",
			"cached_calendar", snapshot.CalendarID, "cached_window", snapshot.Window().String())
		return nil, ErrNoSnapshot
	}
	return snapshot.Events, nil
}

// FetchEvents makes the cache usable as an analysis.EventSource.
func (c *Cache) FetchEvents(ctx context.Context, calendarID string, window analysis.Window) ([]analysis.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Load(calendarID, window)
}

func (c *Cache) GetFilePath() string {
	return c.filePath
}

func (c *Cache) GetCacheDir() string {
	return c.cacheDir
}

func GetDefaultCacheDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cache", config.AppName), nil
}
