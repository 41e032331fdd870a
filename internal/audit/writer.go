package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultMaxSize is the rotation threshold used when none is given.
const DefaultMaxSize = 10 << 20 // 10 MiB

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("audit: writer closed")

// WriterOptions configures a Writer.
type WriterOptions struct {
	// MaxSize is the size in bytes a file may reach before it is rotated.
	// Zero selects DefaultMaxSize.
	MaxSize int64

	// MaxBackups bounds how many rotated files are kept. Zero keeps all.
	MaxBackups int
}

// Writer appends audit lines to a size-rotated file.
//
// Safe for concurrent use. Each Write is appended atomically with respect to
// other Writes on the same Writer.
type Writer struct {
	mu   sync.Mutex
	path string
	opts WriterOptions

	f         *os.File
	size      int64
	rotations int
}

// Open opens (or creates) path for appending.
func Open(path string, opts WriterOptions) (*Writer, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	w := &Writer{path: path, opts: opts}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("audit: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("audit: stat %s: %w", w.path, err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// Path returns the path of the file currently written to.
func (w *Writer) Path() string { return w.path }

// Rotations returns how many times the writer rotated its file.
func (w *Writer) Rotations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotations
}

// Write appends p, rotating first when p would push the file past MaxSize.
// A single write larger than MaxSize still lands in one (fresh) file.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return 0, ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.opts.MaxSize {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// WriteRecord appends r followed by a newline.
func (w *Writer) WriteRecord(r Record) error {
	_, err := w.Write([]byte(r.Format() + "\n"))
	return err
}

// Rotate forces a rotation.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return ErrClosed
	}
	return w.rotateLocked()
}

func (w *Writer) rotateLocked() error {
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("audit: close before rotate: %w", err)
	}
	w.f = nil

	// Find the highest existing suffix, then shift everything up by one.
	highest := 0
	for {
		if _, err := os.Stat(backupName(w.path, highest+1)); err != nil {
			break
		}
		highest++
	}
	for i := highest; i >= 1; i-- {
		if w.opts.MaxBackups > 0 && i >= w.opts.MaxBackups {
			if err := os.Remove(backupName(w.path, i)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("audit: drop old backup: %w", err)
			}
			continue
		}
		if err := os.Rename(backupName(w.path, i), backupName(w.path, i+1)); err != nil {
			return fmt.Errorf("audit: shift backup %d: %w", i, err)
		}
	}
	if err := os.Rename(w.path, backupName(w.path, 1)); err != nil {
		return fmt.Errorf("audit: rotate %s: %w", w.path, err)
	}
	w.rotations++
	return w.open()
}

// Sync flushes the current file to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return ErrClosed
	}
	return w.f.Sync()
}

// Close closes the current file. Further writes return ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func backupName(path string, n int) string {
	return path + "." + strconv.Itoa(n)
}

// Files returns path and its rotated backups ordered oldest first, which is
// the order Analyze expects them in.
func Files(path string) ([]string, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type backup struct {
		n    int
		path string
	}
	var backups []backup
	var current string
	for _, e := range entries {
		name := e.Name()
		if name == base {
			current = filepath.Join(dir, name)
			continue
		}
		suffix, ok := strings.CutPrefix(name, base+".")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 1 {
			continue
		}
		backups = append(backups, backup{n: n, path: filepath.Join(dir, name)})
	}

	// Higher suffix means older.
	sort.Slice(backups, func(i, j int) bool { return backups[i].n > backups[j].n })
	out := make([]string, 0, len(backups)+1)
	for _, b := range backups {
		out = append(out, b.path)
	}
	if current != "" {
		out = append(out, current)
	}
	return out, nil
}
