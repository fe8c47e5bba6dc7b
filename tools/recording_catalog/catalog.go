// Package recordingcatalog inventories the flight recordings under a
// directory, live and archived alike, for operator tooling.
package recordingcatalog

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"ballancemmo/relay/internal/recorder"
)

// Entry describes one recording on disk.
type Entry struct {
	Path      string    `json:"path"`
	Archived  bool      `json:"archived"`
	SizeBytes int64     `json:"size_bytes"`
	StartTime time.Time `json:"start_time"`
	Server    string    `json:"server_version"`
	Records   int       `json:"records"`
}

// List walks the directory tree and returns one entry per parseable
// recording, oldest first.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the tree picking up live .bin recordings and .bin.zst archives.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		archived := strings.HasSuffix(d.Name(), ".bin.zst")
		if !archived && !strings.HasSuffix(d.Name(), ".bin") {
			return nil
		}
		header, records, err := readRecording(path, archived)
		if err != nil {
			//2.- Foreign files in the recording directory are skipped, not fatal.
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:      path,
			Archived:  archived,
			SizeBytes: fi.Size(),
			StartTime: header.StartTime,
			Server:    header.ServerVersion.String(),
			Records:   len(records),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartTime.Equal(entries[j].StartTime) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].StartTime.Before(entries[j].StartTime)
	})
	return entries, nil
}

func readRecording(path string, archived bool) (recorder.Header, []recorder.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return recorder.Header{}, nil, err
	}
	defer f.Close()

	var stream io.Reader = f
	if archived {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return recorder.Header{}, nil, err
		}
		defer dec.Close()
		stream = dec
	}
	return recorder.ReadStream(stream)
}

// MarshalEntries produces a stable JSON representation of the entries for CLI
// output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
