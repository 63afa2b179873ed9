// Package snapshot persists the most recent known-good set of encrypted
// resource records to local disk on a fixed cadence, pruning captures older
// than the retention window. Snapshots hold ciphertext only and are used to
// seed an emergency instance when every real backend is unreachable.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devrev/cryptgate/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	filePrefix   = "resource_snapshot"
	manifestFile = "manifest.yaml"
)

// manifest indexes the capture files currently on disk
type manifest struct {
	Captures []manifestEntry `yaml:"captures"`
}

type manifestEntry struct {
	File       string    `yaml:"file"`
	CapturedAt time.Time `yaml:"captured_at"`
	Records    int       `yaml:"records"`
}

// Cache accumulates successfully persisted resource records in memory and
// captures them to durable JSONL files on a fixed interval.
type Cache struct {
	dir       string
	interval  time.Duration
	retention time.Duration

	mu     sync.RWMutex
	recent map[string]model.ResourceRecord

	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewCache creates a snapshot cache rooted at dir, creating it if needed
func NewCache(dir string, interval, retention time.Duration, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Cache{
		dir:       dir,
		interval:  interval,
		retention: retention,
		recent:    make(map[string]model.ResourceRecord),
		stopCh:    make(chan struct{}),
		logger:    logger,
	}, nil
}

// Record remembers a successfully read or written resource record for the
// next capture. Later records for the same resource replace earlier ones.
func (c *Cache) Record(rec model.ResourceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent[rec.ResourceType+"/"+rec.ResourceID] = rec
}

// Recent returns a copy of the in-memory record set accumulated since start
func (c *Cache) Recent() []model.ResourceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.ResourceRecord, 0, len(c.recent))
	for _, rec := range c.recent {
		out = append(out, rec)
	}
	return out
}

// Capture writes the current record set to a new snapshot file and updates
// the manifest. An empty record set writes nothing.
func (c *Cache) Capture() error {
	records := c.Recent()
	if len(records) == 0 {
		return nil
	}

	capturedAt := time.Now().UTC()
	name := fmt.Sprintf("%s_%d.jsonl", filePrefix, capturedAt.Unix())
	path := filepath.Join(c.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	w := bufio.NewWriter(f)
	for i := range records {
		line, err := json.Marshal(&records[i])
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := c.updateManifest(name, capturedAt, len(records)); err != nil {
		c.logger.Warn("Failed to update snapshot manifest", zap.Error(err))
	}

	c.logger.Info("Snapshot captured",
		zap.String("file", name),
		zap.Int("records", len(records)))
	return nil
}

// Latest loads the newest snapshot on disk, or nil when none exists
func (c *Cache) Latest() (*model.SnapshotRecord, error) {
	files, err := c.listSnapshotFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	// Newest capture first
	sort.Slice(files, func(i, j int) bool { return files[i].capturedAt.After(files[j].capturedAt) })
	newest := files[0]

	f, err := os.Open(filepath.Join(c.dir, newest.name))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	snap := &model.SnapshotRecord{CapturedAt: newest.capturedAt}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.ResourceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			c.logger.Warn("Skipping unparsable snapshot line",
				zap.String("file", newest.name),
				zap.Error(err))
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return snap, nil
}

// Prune deletes snapshot files older than the retention window
func (c *Cache) Prune() error {
	files, err := c.listSnapshotFiles()
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-c.retention)
	for _, sf := range files {
		if sf.capturedAt.After(cutoff) {
			continue
		}
		path := filepath.Join(c.dir, sf.name)
		if err := os.Remove(path); err != nil {
			c.logger.Warn("Failed to remove expired snapshot",
				zap.String("file", sf.name),
				zap.Error(err))
			continue
		}
		c.logger.Info("Removed expired snapshot", zap.String("file", sf.name))
	}
	return nil
}

// Start begins the periodic capture and prune loop
func (c *Cache) Start() {
	c.logger.Info("Starting snapshot cache",
		zap.String("dir", c.dir),
		zap.Duration("interval", c.interval),
		zap.Duration("retention", c.retention))

	ticker := time.NewTicker(c.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := c.Capture(); err != nil {
					c.logger.Error("Snapshot capture failed", zap.Error(err))
				}
				if err := c.Prune(); err != nil {
					c.logger.Error("Snapshot prune failed", zap.Error(err))
				}
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the capture loop
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.logger.Info("Snapshot cache stopped")
}

type snapshotFile struct {
	name       string
	capturedAt time.Time
}

// listSnapshotFiles enumerates capture files by name, deriving the capture
// time from the filename timestamp and falling back to the file mtime
func (c *Cache) listSnapshotFiles() ([]snapshotFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var out []snapshotFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix+"_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}

		ts := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix+"_"), ".jsonl")
		var capturedAt time.Time
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			capturedAt = time.Unix(unix, 0).UTC()
		} else if info, err := entry.Info(); err == nil {
			capturedAt = info.ModTime().UTC()
		} else {
			continue
		}
		out = append(out, snapshotFile{name: name, capturedAt: capturedAt})
	}
	return out, nil
}

// updateManifest rewrites the manifest to reflect files currently on disk
// plus the newly written capture
func (c *Cache) updateManifest(newFile string, capturedAt time.Time, records int) error {
	files, err := c.listSnapshotFiles()
	if err != nil {
		return err
	}

	m := manifest{}
	for _, sf := range files {
		entry := manifestEntry{File: sf.name, CapturedAt: sf.capturedAt}
		if sf.name == newFile {
			entry.CapturedAt = capturedAt
			entry.Records = records
		}
		m.Captures = append(m.Captures, entry)
	}
	sort.Slice(m.Captures, func(i, j int) bool {
		return m.Captures[i].CapturedAt.Before(m.Captures[j].CapturedAt)
	})

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(c.dir, manifestFile), data, 0o644)
}
