package registry

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// count returns the number of log lines containing substr.
func (b *syncBuffer) count(substr string) int {
	n := 0
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// newTestRegistry returns a running registry logging into the returned
// buffer. Misuse does not sleep. The registry is shut down on cleanup.
func newTestRegistry(t *testing.T, opts Options) (*Registry, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if opts.MisuseDelay == 0 {
		opts.MisuseDelay = -1
	}
	r := New(opts)
	require.NoError(t, r.Init())
	t.Cleanup(func() { r.Shutdown() })
	return r, logs
}

// finalizeCounter counts Finalize calls.
type finalizeCounter struct {
	n atomic.Int64
}

func (c *finalizeCounter) Finalize([]byte) { c.n.Add(1) }

func (c *finalizeCounter) calls() int64 { return c.n.Load() }

func mustCreate(t *testing.T, r *Registry, typ Type, id string, fin Finalizer) Ref {
	t.Helper()
	ref, err := r.Create(64, typ, id, fin)
	require.NoError(t, err)
	require.False(t, ref.IsNil())
	return ref
}

func countOf(t *testing.T, r *Registry, ref Ref) int32 {
	t.Helper()
	e, err := r.Info(ref)
	require.NoError(t, err)
	return e.Count
}
