package registry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joshuapare/refcount/internal/ident"
)

const (
	// DefaultBuckets is the default table size. A prime keeps address mod
	// size well spread although payload addresses are 8-byte aligned.
	DefaultBuckets = 563

	// DefaultIdentifierSize is the default identifier width in bytes.
	DefaultIdentifierSize = ident.DefaultSize

	// DefaultRelationshipSlots is the slot count used by OptionsFromEnv
	// when relationship tracking is switched on.
	DefaultRelationshipSlots = 10

	// DefaultReportDepth bounds Report traversal.
	DefaultReportDepth = 5

	// DefaultMisuseDelay is the pause after a logged misuse in non-strict mode.
	DefaultMisuseDelay = 10 * time.Millisecond

	// DefaultTombstones is the number of destroyed objects remembered.
	DefaultTombstones = 256

	// DefaultTombstoneTTL is how long a destroyed object is remembered.
	DefaultTombstoneTTL = 5 * time.Minute

	// DefaultOvercrowdThreshold is the fill factor above which the table
	// is reported as overcrowded.
	DefaultOvercrowdThreshold = 3.0

	// MaxObjectSize is the largest payload Create accepts.
	MaxObjectSize = 1 << 30
)

// Options configures a Registry. The zero value is usable: every field
// documents the default its zero value selects.
type Options struct {
	// Buckets is the table size. Zero selects DefaultBuckets.
	Buckets int

	// IdentifierSize is the identifier width in bytes; longer identifiers
	// are truncated. Zero selects DefaultIdentifierSize.
	IdentifierSize int

	// RelationshipSlots is the number of weak relationship slots per object.
	// Zero disables relationship tracking.
	RelationshipSlots int

	// ReportDepth bounds how deep Report follows relationships.
	// Zero selects DefaultReportDepth.
	ReportDepth int

	// Strict turns misuse (nil, unknown or dead Refs, over-release) into a
	// panic with a *MisuseError. Meant for tests and debug builds.
	Strict bool

	// MisuseDelay is slept after a logged misuse in non-strict mode.
	// Zero selects DefaultMisuseDelay; negative disables the pause.
	MisuseDelay time.Duration

	// EmulateAtomics replaces the lock-free counters with mutex guarded
	// ones using the per-object lock.
	EmulateAtomics bool

	// TrackCallers records file, line and function of each operation in
	// misuse logs and audit records.
	TrackCallers bool

	// Audit receives one line per transition. The registry does not close it.
	Audit io.Writer

	// AuditPath, when set, makes Init open a size-rotated audit file there
	// (in addition to Audit). Shutdown closes it.
	AuditPath string

	// AuditMaxSize is the rotation threshold for AuditPath. Zero selects
	// audit.DefaultMaxSize.
	AuditMaxSize int64

	// AuditMaxBackups bounds the rotated files kept. Zero keeps all.
	AuditMaxBackups int

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger

	// Tombstones is how many destroyed objects are remembered for
	// diagnosing stale Refs. Zero selects DefaultTombstones; negative
	// disables the graveyard.
	Tombstones int

	// TombstoneTTL is how long a tombstone is reported. Zero selects
	// DefaultTombstoneTTL.
	TombstoneTTL time.Duration

	// OvercrowdThreshold is the fill factor above which Stats reports the
	// table as overcrowded. Zero selects DefaultOvercrowdThreshold.
	OvercrowdThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Buckets <= 0 {
		o.Buckets = DefaultBuckets
	}
	if o.IdentifierSize <= 0 {
		o.IdentifierSize = DefaultIdentifierSize
	}
	if o.RelationshipSlots < 0 {
		o.RelationshipSlots = 0
	}
	if o.ReportDepth <= 0 {
		o.ReportDepth = DefaultReportDepth
	}
	if o.MisuseDelay == 0 {
		o.MisuseDelay = DefaultMisuseDelay
	}
	if o.Tombstones == 0 {
		o.Tombstones = DefaultTombstones
	}
	if o.TombstoneTTL <= 0 {
		o.TombstoneTTL = DefaultTombstoneTTL
	}
	if o.OvercrowdThreshold <= 0 {
		o.OvercrowdThreshold = DefaultOvercrowdThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Environment variables read by OptionsFromEnv.
const (
	EnvStrict        = "REFCOUNT_STRICT"
	EnvTrackCallers  = "REFCOUNT_TRACK_CALLERS"
	EnvRelationships = "REFCOUNT_RELATIONSHIPS"
	EnvAuditFile     = "REFCOUNT_AUDIT_FILE"
	EnvAuditMaxSize  = "REFCOUNT_AUDIT_MAX_SIZE"
	EnvBuckets       = "REFCOUNT_BUCKETS"
)

// OptionsFromEnv builds Options from the REFCOUNT_* environment variables.
//
// Boolean variables are on when set to anything strconv.ParseBool accepts as
// true. REFCOUNT_RELATIONSHIPS may also be a slot count.
func OptionsFromEnv() (Options, error) {
	return optionsFromLookup(os.LookupEnv)
}

func optionsFromLookup(lookup func(string) (string, bool)) (Options, error) {
	var o Options

	flag := func(name string) (bool, error) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("registry: %s=%q: %w", name, v, err)
		}
		return b, nil
	}

	var err error
	if o.Strict, err = flag(EnvStrict); err != nil {
		return o, err
	}
	if o.TrackCallers, err = flag(EnvTrackCallers); err != nil {
		return o, err
	}
	if v, ok := lookup(EnvRelationships); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.RelationshipSlots = n
		} else if on, err := strconv.ParseBool(v); err == nil {
			if on {
				o.RelationshipSlots = DefaultRelationshipSlots
			}
		} else {
			return o, fmt.Errorf("registry: %s=%q: not a count or boolean", EnvRelationships, v)
		}
	}
	if v, ok := lookup(EnvAuditFile); ok {
		o.AuditPath = v
	}
	if v, ok := lookup(EnvAuditMaxSize); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return o, fmt.Errorf("registry: %s=%q: not a size", EnvAuditMaxSize, v)
		}
		o.AuditMaxSize = n
	}
	if v, ok := lookup(EnvBuckets); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return o, fmt.Errorf("registry: %s=%q: not a bucket count", EnvBuckets, v)
		}
		o.Buckets = n
	}
	return o, nil
}
