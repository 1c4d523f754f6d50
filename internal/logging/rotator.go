package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator appends to a single file and moves it aside when the next
// write would exceed MaxSize or the calendar day has changed. Moved files
// are named <stem>-<timestamp><ext>, optionally gzipped, and pruned by
// MaxBackups and MaxAge in the background.
type FileRotator struct {
	path       string
	limit      int64
	maxAge     int
	maxBackups int
	compress   bool

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time

	// background compression and pruning
	pending sync.WaitGroup
}

// NewFileRotator opens cfg.FilePath, creating its directory.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	r := &FileRotator{
		path:       cfg.FilePath,
		limit:      cfg.MaxSize << 20,
		maxAge:     cfg.MaxAge,
		maxBackups: cfg.MaxBackups,
		compress:   cfg.Compress,
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", r.path, err)
	}
	r.file, r.size, r.opened = f, info.Size(), time.Now()
	return nil
}

// Write appends p, rotating first if needed. A write is never split
// across two files.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.due(len(p)) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", r.path, err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// due reports whether the next write of n bytes belongs in a new file.
// An empty file is never rotated.
func (r *FileRotator) due(n int) bool {
	switch {
	case r.size == 0:
		return false
	case r.limit > 0 && r.size+int64(n) > r.limit:
		return true
	default:
		return r.opened.YearDay() != time.Now().YearDay()
	}
}

func (r *FileRotator) split() (dir, stem, ext string) {
	base := filepath.Base(r.path)
	ext = filepath.Ext(base)
	return filepath.Dir(r.path), strings.TrimSuffix(base, ext), ext
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	dir, stem, ext := r.split()
	moved := filepath.Join(dir, stem+"-"+time.Now().Format("20060102-150405.000")+ext)
	if err := os.Rename(r.path, moved); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		if r.compress {
			compress(moved)
		}
		r.prune()
	}()
	return nil
}

// compress replaces path with path.gz, keeping path if anything fails.
func compress(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)

	_, err = io.Copy(zw, src)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	dst.Close()

	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// Backups returns the moved-aside files, oldest first.
func (r *FileRotator) Backups() ([]string, error) {
	dir, stem, ext := r.split()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"+ext+"*"))
	if err != nil {
		return nil, err
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var found []backup
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			found = append(found, backup{m, info.ModTime()})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.Before(found[j].mod) })

	paths := make([]string, len(found))
	for i, b := range found {
		paths[i] = b.path
	}
	return paths, nil
}

func (r *FileRotator) prune() {
	backups, err := r.Backups()
	if err != nil {
		return
	}
	if r.maxBackups > 0 && len(backups) > r.maxBackups {
		excess := len(backups) - r.maxBackups
		for _, b := range backups[:excess] {
			os.Remove(b)
		}
		backups = backups[excess:]
	}
	if r.maxAge <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -r.maxAge)
	for _, b := range backups {
		if info, err := os.Stat(b); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(b)
		}
	}
}

// Close waits for background work, then syncs and closes the file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending.Wait()
	if r.file == nil {
		return nil
	}
	f := r.file
	r.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
