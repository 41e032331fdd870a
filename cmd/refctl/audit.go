package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/refcount/internal/audit"
	"github.com/joshuapare/refcount/internal/logger"
)

var (
	auditNoBackups bool
	auditLimit     int
)

func init() {
	cmd := newAuditCmd()
	cmd.Flags().BoolVar(&auditNoBackups, "no-backups", false, "Ignore rotated backups of a single file")
	cmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum leaked objects to print (0 for all)")
	rootCmd.AddCommand(cmd)
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <file> [file...]",
		Short: "Replay audit logs and report unreleased objects",
		Long: `The audit command replays reference count audit logs and reports
every object whose last transition left a nonzero count.

Given a single file, its rotated backups (file.1, file.2, ...) are replayed
first, oldest first. Given several files, they are replayed in the order
listed.

Example:
  refctl audit /var/log/refcount.audit
  refctl audit --no-backups /var/log/refcount.audit
  refctl audit old.audit new.audit --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(args)
		},
	}
	return cmd
}

// AuditOutput is the JSON form of the audit command.
type AuditOutput struct {
	Files     []string
	Records   int
	Malformed int
	Objects   int
	Destroyed int
	Leaked    []LeakedObject
	Untracked int // live objects created before the oldest file
}

// LeakedObject is one unreleased object.
type LeakedObject struct {
	Pointer    string
	Type       string
	Identifier string
	Count      int32
	Retains    int
	Releases   int
	CreatedAt  string `json:",omitempty"`
	LastAt     string `json:",omitempty"`
}

func runAudit(args []string) error {
	files := args
	if len(args) == 1 && !auditNoBackups {
		found, err := audit.Files(args[0])
		if err != nil {
			return fmt.Errorf("failed to list audit files: %w", err)
		}
		if len(found) == 0 {
			return fmt.Errorf("audit file not found: %s", args[0])
		}
		files = found
	}

	readers := make([]io.Reader, 0, len(files))
	for _, path := range files {
		printVerbose("Reading %s\n", path)
		logger.Debug("reading audit file", "path", path)
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open audit file: %w", err)
		}
		defer f.Close()
		readers = append(readers, f)
	}

	sum, err := audit.Analyze(readers...)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	leaked := sum.Leaked()
	sort.Slice(leaked, func(i, j int) bool { return leaked[i].Addr < leaked[j].Addr })

	out := AuditOutput{
		Files:     files,
		Records:   sum.Records,
		Malformed: sum.Malformed,
		Objects:   sum.Objects,
		Destroyed: sum.Destroyed,
		Untracked: len(sum.Live) - len(leaked),
	}
	for _, t := range leaked {
		out.Leaked = append(out.Leaked, LeakedObject{
			Pointer:    fmt.Sprintf("%#x", t.Addr),
			Type:       t.Type,
			Identifier: t.Identifier,
			Count:      t.Count,
			Retains:    t.Retains,
			Releases:   t.Releases,
			CreatedAt:  siteOf(t.First),
			LastAt:     siteOf(t.Last),
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	printInfo("\nAudit Summary\n")
	printInfo("%s\n", strings.Repeat("=", 40))
	printInfo("  Files:      %d\n", len(files))
	printInfo("  Records:    %s\n", formatNumber(int64(out.Records)))
	if out.Malformed > 0 {
		printInfo("  Malformed:  %d\n", out.Malformed)
	}
	printInfo("  Objects:    %s\n", formatNumber(int64(out.Objects)))
	printInfo("  Destroyed:  %s\n", formatNumber(int64(out.Destroyed)))
	printInfo("  Leaked:     %d\n", len(out.Leaked))
	if out.Untracked > 0 {
		printInfo("  Untracked:  %d (created before the oldest record)\n", out.Untracked)
	}

	if len(out.Leaked) > 0 {
		printInfo("\nLeaked Objects:\n")
		for i, l := range out.Leaked {
			if auditLimit > 0 && i >= auditLimit {
				printInfo("  ... (%d more)\n", len(out.Leaked)-auditLimit)
				break
			}
			printInfo("  %s %s %q count=%d (+%d/-%d)\n",
				l.Pointer, l.Type, l.Identifier, l.Count, l.Retains, l.Releases)
			if l.CreatedAt != "" {
				printInfo("      created at %s\n", l.CreatedAt)
			}
			if l.LastAt != "" && l.LastAt != l.CreatedAt {
				printInfo("      last seen at %s\n", l.LastAt)
			}
		}
	}
	return nil
}

func siteOf(r audit.Record) string {
	if r.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d %s", r.File, r.Line, r.Func)
}
