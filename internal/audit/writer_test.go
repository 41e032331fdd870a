package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_AppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refcount.log")
	w, err := Open(path, WriterOptions{})
	require.NoError(t, err)

	require.NoError(t, w.WriteRecord(Record{Addr: 0x10, Delta: 1, Count: 1, Type: "device", Identifier: "d1"}))
	require.NoError(t, w.WriteRecord(Record{Addr: 0x10, Delta: -1, Count: 0, Type: "device", Identifier: "d1"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "0x10 | +1 |"))
	assert.True(t, strings.HasPrefix(lines[1], "0x10 | -1 |"))
}

func TestWriter_RotatesWithIncrementingSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refcount.log")
	line := strings.Repeat("x", 39) + "\n" // 40 bytes

	w, err := Open(path, WriterOptions{MaxSize: 100})
	require.NoError(t, err)
	defer w.Close()

	// Two lines fit (80 bytes), the third forces a rotation.
	for i := 0; i < 7; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.Equal(t, 3, w.Rotations())

	for _, name := range []string{"refcount.log", "refcount.log.1", "refcount.log.2", "refcount.log.3"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	// The current file holds the newest (7th) line only.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 40)

	// The oldest backup holds the first two lines.
	data, err = os.ReadFile(path + ".3")
	require.NoError(t, err)
	require.Len(t, data, 80)
}

func TestWriter_MaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refcount.log")

	w, err := Open(path, WriterOptions{MaxSize: 10, MaxBackups: 2})
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 6; i++ {
		_, err := w.Write([]byte("0123456789"))
		require.NoError(t, err)
	}

	files, err := Files(path)
	require.NoError(t, err)
	require.Equal(t, []string{path + ".2", path + ".1", path}, files)
}

func TestWriter_ReopenContinuesSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refcount.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("y", 90)), 0644))

	w, err := Open(path, WriterOptions{MaxSize: 100})
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte(strings.Repeat("z", 20)))
	require.NoError(t, err)
	require.Equal(t, 1, w.Rotations())
}

func TestWriter_ClosedWrites(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "a.log"), WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, w.Rotate(), ErrClosed)
}

func TestWriter_ConcurrentWritesStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refcount.log")
	w, err := Open(path, WriterOptions{MaxSize: 4096})
	require.NoError(t, err)

	const goroutines = 8
	const perG = 200
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				_ = w.WriteRecord(Record{Addr: uintptr(g + 1), Delta: 1, Count: int32(i + 1), Type: "test", Identifier: "t"})
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	files, err := Files(path)
	require.NoError(t, err)
	total := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			_, err := Parse(line)
			require.NoError(t, err, "line %q in %s", line, f)
			total++
		}
	}
	require.Equal(t, goroutines*perG, total)
}

func TestFiles_OrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refcount.log")
	for _, name := range []string{"refcount.log", "refcount.log.1", "refcount.log.10", "refcount.log.2", "refcount.log.bak", "other.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files, err := Files(path)
	require.NoError(t, err)
	require.Equal(t, []string{path + ".10", path + ".2", path + ".1", path}, files)
}
