// Package export writes pending-queue archives for diagnostics and
// support. An archive is a tar.gz holding a manifest and the queued
// trades with their retry state, so a stuck queue can be inspected
// offline without touching the live database.
package export

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradewatch/agent/internal/db"
	apperrors "github.com/tradewatch/agent/internal/errors"
	"github.com/tradewatch/agent/internal/models"
)

// Service exports the pending queue.
type Service struct {
	store *db.Store
}

// NewService creates a Service over the agent store.
func NewService(store *db.Store) *Service {
	return &Service{store: store}
}

// Manifest describes one archive.
type Manifest struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	ItemCount  int       `json:"item_count"`
	Checksum   string    `json:"checksum"`
}

// Result summarizes one export operation.
type Result struct {
	FilePath  string
	SizeBytes int64
	ItemCount int
	Checksum  string
	Duration  time.Duration
}

// entry is the archived form of one queue row: the original event plus
// its delivery state.
type entry struct {
	Event       json.RawMessage `json:"event"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	RetryCount  int             `json:"retry_count"`
	LastError   string          `json:"last_error,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
}

// Export writes an archive of every pending trade to outputPath. An
// empty outputPath picks a timestamped name in the current directory.
func (s *Service) Export(outputPath string) (*Result, error) {
	start := time.Now()

	entries, err := s.store.AllEntries()
	if err != nil {
		return nil, err
	}

	data, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	manifest, err := json.MarshalIndent(Manifest{
		Version:    "1.0",
		ExportedAt: start.UTC(),
		ItemCount:  len(entries),
		Checksum:   checksum,
	}, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode manifest", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tradewatch_queue_%s.tar.gz", start.Format("20060102_150405"))
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create export directory", err)
		}
	}

	size, err := writeArchive(outputPath, map[string][]byte{
		"manifest.json": manifest,
		"trades.json":   data,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		FilePath:  outputPath,
		SizeBytes: size,
		ItemCount: len(entries),
		Checksum:  checksum,
		Duration:  time.Since(start),
	}, nil
}

func encodeEntries(rows []*models.QueueEntry) ([]byte, error) {
	out := make([]entry, 0, len(rows))
	for _, row := range rows {
		e := entry{
			Event:      row.Payload,
			EnqueuedAt: row.EnqueuedAtTime().UTC(),
			RetryCount: row.RetryCount,
			LastError:  row.LastError,
		}
		if row.NextRetryAt != nil {
			t := time.Unix(*row.NextRetryAt, 0).UTC()
			e.NextRetryAt = &t
		}
		out = append(out, e)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode queue entries", err)
	}
	return data, nil
}

// writeArchive writes the named files into a tar.gz at path and returns
// the archive size. Files are written in name order for reproducibility.
func writeArchive(path string, files map[string][]byte) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to create archive", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	names := []string{"manifest.json", "trades.json"}
	now := time.Now()
	for _, name := range names {
		content, ok := files[name]
		if !ok {
			continue
		}
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to write archive header", err)
		}
		if _, err := tw.Write(content); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to write archive entry", err)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to finalize archive", err)
	}
	if err := gz.Close(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to finalize compression", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to stat archive", err)
	}
	return info.Size(), nil
}
