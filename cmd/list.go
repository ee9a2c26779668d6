package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagededup/internal/models"
	"imagededup/internal/source"
	"imagededup/internal/tui"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listLimit   int
	listOffset  int
	listTagged  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups of the latest scan",
	Long: `Display the duplicate groups found by the latest scan.

Each group shows:
- Group ID and the hash it was matched on
- Every item with its similarity to the group pivot
- The saved plan, if any: ✓ keep, ✗ remove

Example:
  imagededup list                  # Show first 10 groups (default)
  imagededup list -n 0             # Show all groups
  imagededup list -s               # Summary view (compact)
  imagededup list --offset 10      # Groups 11-20
  imagededup list --tagged Duplicate`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show size, resolution and capture time")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N groups (for pagination)")
	listCmd.Flags().StringVar(&listTagged, "tagged", "", "List items carrying this tag instead of groups")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if listTagged != "" {
		ids, err := store.TaggedItems(listTagged)
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(ids)
		}
		fmt.Printf("%d items tagged %q\n", len(ids), listTagged)
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}

	scan, groups, local, err := latestScan(store)
	if err != nil {
		return err
	}

	decisions, err := store.Decisions(scan.ScanID)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	if listJSON {
		return printJSON(map[string]any{
			"scan_id":   scan.ScanID,
			"algorithm": scan.Algorithm,
			"threshold": scan.Threshold,
			"groups":    groups,
			"decisions": decisions,
		})
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		fmt.Println("Run 'imagededup scan <folder>' to scan for duplicates.")
		return nil
	}

	duplicates := 0
	for _, g := range groups {
		duplicates += len(g.Items) - 1
	}
	fmt.Printf("Scan %s (%s, %.2f%%, %s)\n", scan.ScanID, scan.Algorithm, scan.Threshold, humanize.Time(scan.StartedAt))
	fmt.Printf("Found %d duplicate groups (%d duplicates)\n\n", len(groups), duplicates)

	// Apply pagination
	totalGroups := len(groups)
	startIdx := listOffset
	if startIdx > len(groups) {
		startIdx = len(groups)
	}
	groups = groups[startIdx:]

	if listLimit > 0 && listLimit < len(groups) {
		groups = groups[:listLimit]
	}

	// Display groups
	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(groups, decisions, local)
	} else {
		for _, group := range groups {
			d, planned := decisions[group.ID]
			printGroup(group, d, planned, local, listVerbose)
		}
	}

	// Show pagination info
	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: imagededup list%s --offset %d\n", limitArg, endIdx)
		}
	}

	fmt.Println()
	if len(decisions) == 0 {
		fmt.Println("Run 'imagededup plan --strategy <name>' to decide which items to keep")
	} else {
		fmt.Println("Run 'imagededup clean --dry-run' to preview the plan")
	}
	return nil
}

func printSummaryTable(groups []*models.DuplicateGroup, decisions map[int]models.DedupDecision, local *source.Local) {
	fmt.Printf("%-8s  %-8s  %-12s  %s\n", "Group", "Items", "Reclaimable", "Keep")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		keep := "-"
		var reclaimable uint64
		if d, ok := decisions[group.ID]; ok {
			if d.KeepItem != "" {
				keep = shortenPath(d.KeepItem, 35)
			}
			for _, id := range d.RemoveItems {
				if meta, err := local.Metadata(context.Background(), id); err == nil {
					reclaimable += uint64(meta.Size)
				}
			}
		}

		fmt.Printf("#%-7d  %-8d  %-12s  %s\n",
			group.ID, len(group.Items), humanize.IBytes(reclaimable), keep)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, d models.DedupDecision, planned bool, local *source.Local, verbose bool) {
	header := fmt.Sprintf("Group #%d (%d items, %s)", group.ID, len(group.Items), group.HashType)
	if planned {
		header += "  " + listDimStyle.Render(d.Reason)
	}
	fmt.Println(listHeaderStyle.Render(header))
	fmt.Println(strings.Repeat("-", 60))

	removed := make(map[string]bool, len(d.RemoveItems))
	for _, id := range d.RemoveItems {
		removed[id] = true
	}

	for _, id := range group.Items {
		marker := " "
		switch {
		case planned && id == d.KeepItem:
			marker = listKeepStyle.Render("✓")
		case removed[id]:
			marker = listRemoveStyle.Render("✗")
		}

		score := fmt.Sprintf("%6.2f%%", group.SimilarityScores[id])
		fmt.Printf("  %s %-40s  %s\n", marker, shortenPath(id, 40), score)

		if verbose {
			meta, err := local.Metadata(context.Background(), id)
			if err != nil {
				fmt.Printf("      %s\n", listDimStyle.Render(fmt.Sprintf("unavailable: %v", err)))
				continue
			}
			line := fmt.Sprintf("Resolution: %dx%d  Format: %s  Size: %s  Modified: %s",
				meta.Width, meta.Height, strings.ToUpper(meta.Format), humanize.IBytes(uint64(meta.Size)), humanize.Time(meta.ModTime))
			if !meta.CaptureTime.IsZero() {
				line += "  Taken: " + meta.CaptureTime.Format("2006-01-02 15:04")
			}
			fmt.Printf("      %s\n", listDimStyle.Render(line))
		}
	}
	fmt.Println()
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Try to show filename and as much of the path as possible
	dir, file := splitID(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

// splitID splits a slash-separated item ID into directory and file name
func splitID(id string) (string, string) {
	i := strings.LastIndex(id, "/")
	return id[:i+1], id[i+1:]
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	listHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	listKeepStyle   = lipgloss.NewStyle().Foreground(tui.ColorSuccess)
	listRemoveStyle = lipgloss.NewStyle().Foreground(tui.ColorDanger)
	listDimStyle    = lipgloss.NewStyle().Foreground(tui.ColorDim)
)
