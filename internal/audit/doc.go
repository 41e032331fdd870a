// Package audit records and replays reference count transitions.
//
// Every create, retain, release and destroy of a registry object can be
// appended to an audit log as one line:
//
//	pointer | sign+delta | thread_id | source_file | source_line | function | resulting_count | type | identifier
//
// for example
//
//	0xc000012345 | +1 | 4711 | device.go | 88 | main.registerDevice | 2 | device | SEP00112233
//
// A create shows +1 with a resulting count of 1; the release that destroys an
// object shows a resulting count of 0. Fields are separated by " | ";
// identifiers are sanitised upstream so they never contain the separator.
//
// Writer appends lines to a file and rotates it once it would grow past a
// size threshold. Rotated files get numeric suffixes: the current file is
// renamed to path.1, an older path.1 to path.2, and so on.
//
// Analyze replays one or more logs and reports objects whose last recorded
// count never reached zero, which is the postmortem view of a reference leak.
package audit
