package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"ballancemmo/relay/internal/logging"
)

// RetentionPolicy bounds how long finished recordings stay on disk.
type RetentionPolicy struct {
	// MaxFiles caps the number of retained archives; zero means unlimited.
	MaxFiles int
	// MaxAge expires archives by modification time; zero means unlimited.
	MaxAge time.Duration
}

// Archiver compresses finished recordings with zstd and prunes old archives.
// The active recording (the newest .bin) is never touched.
type Archiver struct {
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
}

// NewArchiver constructs an archiver for the recording directory.
func NewArchiver(dir string, policy RetentionPolicy, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.L()
	}
	return &Archiver{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Run executes sweeps until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	if a == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	a.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep()
		}
	}
}

// Sweep performs one compress-and-prune pass.
func (a *Archiver) Sweep() {
	if a == nil || strings.TrimSpace(a.dir) == "" {
		return
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		a.log.Warn("recording sweep failed", logging.Error(err), logging.String("directory", a.dir))
		return
	}

	type artefact struct {
		path    string
		modTime time.Time
		raw     bool
	}
	var raws, archives []artefact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		info, err := entry.Info()
		if err != nil {
			continue
		}
		art := artefact{path: filepath.Join(a.dir, name), modTime: info.ModTime()}
		switch {
		case strings.HasSuffix(name, ".bin"):
			art.raw = true
			raws = append(raws, art)
		case strings.HasSuffix(name, ".bin.zst"):
			archives = append(archives, art)
		}
	}

	//1.- The newest raw recording is assumed live; everything older is final.
	sort.Slice(raws, func(i, j int) bool { return raws[i].modTime.After(raws[j].modTime) })
	for i, art := range raws {
		if i == 0 {
			continue
		}
		archived, err := a.compress(art.path)
		if err != nil {
			a.log.Warn("recording compression failed", logging.Error(err), logging.String("path", art.path))
			continue
		}
		archives = append(archives, artefact{path: archived, modTime: art.modTime})
		a.log.Info("recording archived", logging.String("path", archived))
	}

	//2.- Prune archives newest-first against the count and age budgets.
	sort.Slice(archives, func(i, j int) bool { return archives[i].modTime.After(archives[j].modTime) })
	now := a.now()
	for i, art := range archives {
		tooMany := a.policy.MaxFiles > 0 && i >= a.policy.MaxFiles
		tooOld := a.policy.MaxAge > 0 && now.Sub(art.modTime) > a.policy.MaxAge
		if !tooMany && !tooOld {
			continue
		}
		if err := os.Remove(art.path); err != nil {
			a.log.Warn("recording prune failed", logging.Error(err), logging.String("path", art.path))
			continue
		}
		a.log.Info("recording pruned", logging.String("path", art.path))
	}
}

func (a *Archiver) compress(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := path + ".zst"
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	//1.- Preserve the original modification time so retention ages correctly.
	if info, err := os.Stat(path); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	if err := os.Remove(path); err != nil {
		return dst, err
	}
	return dst, nil
}
