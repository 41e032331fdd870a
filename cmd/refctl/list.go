package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/refcount/internal/logger"
	"github.com/joshuapare/refcount/registry"
)

var (
	listDevices  int
	listLines    int
	listChannels int
	listLeak     bool
	listReport   bool
	listStats    bool
	listBucket   int
)

func init() {
	cmd := newListCmd()
	cmd.Flags().IntVar(&listDevices, "devices", 2, "Number of sample devices")
	cmd.Flags().IntVar(&listLines, "lines", 2, "Lines per device")
	cmd.Flags().IntVar(&listChannels, "channels", 1, "Channels per line")
	cmd.Flags().BoolVar(&listLeak, "leak", false, "Keep the topology alive so Shutdown reclaims it")
	cmd.Flags().BoolVar(&listReport, "report", false, "Print the ownership report of every device")
	cmd.Flags().BoolVar(&listStats, "stats", false, "Print table statistics")
	cmd.Flags().IntVar(&listBucket, "bucket", -1, "Only list the bucket with this index")
	rootCmd.AddCommand(cmd)
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Build a sample topology and list the registry",
		Long: `The list command registers a sample set of devices, lines and
channels, links each device to its lines and each line to its channels, and
prints the registry listing.

Example:
  refctl list
  refctl list --devices 5 --lines 3 --report
  refctl list --stats --json
  refctl list --leak -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
	return cmd
}

// ListOutput is the JSON form of the list command.
type ListOutput struct {
	Entries []ListEntry
	Stats   *registry.TableStats `json:",omitempty"`
	Reports []string             `json:",omitempty"`
	Leaked  int
}

// ListEntry is an Entry with the pointer rendered for JSON.
type ListEntry struct {
	Bucket        int
	Type          string
	Identifier    string
	Pointer       string
	Count         int32
	Alive         bool
	Relationships int
}

func runList() error {
	if listDevices < 0 || listLines < 0 || listChannels < 0 {
		return fmt.Errorf("topology sizes must not be negative")
	}

	r, err := newRegistry(func(o *registry.Options) {
		if o.RelationshipSlots == 0 {
			o.RelationshipSlots = max(listLines, listChannels, 1)
		}
		if o.RelationshipSlots < max(listLines, listChannels) {
			o.RelationshipSlots = max(listLines, listChannels)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start registry: %w", err)
	}

	scope := r.NewScope()
	devices, err := buildTopology(r, scope)
	if err != nil {
		scope.Close()
		r.Shutdown()
		return err
	}

	var entries []registry.Entry
	if listBucket >= 0 {
		entries = r.ListBucket(uintptr(listBucket))
	} else {
		entries = r.List()
	}

	out := ListOutput{}
	for _, e := range entries {
		out.Entries = append(out.Entries, ListEntry{
			Bucket:        e.Bucket,
			Type:          e.Type.String(),
			Identifier:    e.Identifier,
			Pointer:       e.Ref.String(),
			Count:         e.Count,
			Alive:         e.Alive,
			Relationships: e.Relationships,
		})
	}
	if listStats {
		st := r.Stats()
		out.Stats = &st
	}
	if listReport {
		for _, dev := range devices {
			rep, err := r.Report(dev)
			if err != nil {
				scope.Close()
				r.Shutdown()
				return fmt.Errorf("failed to report %s: %w", dev, err)
			}
			out.Reports = append(out.Reports, rep)
		}
	}

	if !listLeak {
		if err := scope.Close(); err != nil {
			return fmt.Errorf("failed to release topology: %w", err)
		}
	}
	out.Leaked = len(r.Shutdown().Leaked)
	if out.Leaked > 0 {
		logger.Warn("topology leaked at shutdown", "objects", out.Leaked, "intentional", listLeak)
	}

	if jsonOut {
		return printJSON(out)
	}

	if !quiet {
		if err := registry.WriteListing(os.Stdout, entries); err != nil {
			return err
		}
	}
	if out.Stats != nil {
		printInfo("\n")
		if !quiet {
			if err := registry.WriteStats(os.Stdout, *out.Stats); err != nil {
				return err
			}
		}
	}
	for _, rep := range out.Reports {
		printInfo("\n%s", rep)
	}
	if out.Leaked > 0 {
		printInfo("\nShutdown reclaimed %d leaked object(s)\n", out.Leaked)
	}
	return nil
}

// buildTopology registers devices, their lines and the lines' channels.
// Every created reference is handed to scope; the returned device Refs are
// borrowed from it.
func buildTopology(r *registry.Registry, scope *registry.Scope) ([]registry.Ref, error) {
	var devices []registry.Ref
	ext := 100
	for d := 0; d < listDevices; d++ {
		dev, err := r.Create(128, registry.TypeDevice, fmt.Sprintf("SEP%012X", d+1), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
		devices = append(devices, *scope.Add(&dev))
		printVerbose("Created device %s\n", dev)

		for l := 0; l < listLines; l++ {
			ext++
			line, err := r.Create(64, registry.TypeLine, fmt.Sprintf("%d", ext), nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create line: %w", err)
			}
			scope.Add(&line)
			if err := r.AddRelationship(dev, line); err != nil {
				return nil, fmt.Errorf("failed to link line %d: %w", ext, err)
			}

			for c := 0; c < listChannels; c++ {
				ch, err := r.Create(256, registry.TypeChannel, fmt.Sprintf("SCCP/%d-%08x", ext, c+1), nil)
				if err != nil {
					return nil, fmt.Errorf("failed to create channel: %w", err)
				}
				scope.Add(&ch)
				if err := r.AddRelationship(line, ch); err != nil {
					return nil, fmt.Errorf("failed to link channel: %w", err)
				}
			}
		}
	}
	return devices, nil
}
