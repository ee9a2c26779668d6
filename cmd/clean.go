package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagededup/internal/models"
	"imagededup/internal/processor"
	"imagededup/internal/source"
	"imagededup/internal/storage"
	"imagededup/internal/strategy"
	"imagededup/internal/tui"
)

var (
	dryRun        bool
	noConfirm     bool
	groupIDs      []int
	cleanAction   string
	cleanTarget   string
	cleanStrategy string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Tag, move or delete duplicate images",
	Long: `Apply an action to every item the plan schedules for removal.

The plan saved by 'imagededup plan' is used. Groups without a saved
decision are planned with --strategy first.

Actions:
  tag         record --tag on the item, the file is left alone
  collection  move the item into the --target folder
  remove      move the item into .trash under the scanned folder (default)
  delete      delete the file permanently
  none        do nothing

Options:
  --dry-run     Preview what would happen without touching files
  --yes         Skip confirmation prompt
  --group       Specify group IDs to clean (can be used multiple times)

Example:
  imagededup clean                                 # Move to .trash
  imagededup clean --action delete                 # Delete permanently
  imagededup clean --action collection --target dupes
  imagededup clean --action tag --tag Review
  imagededup clean --dry-run                       # Preview only
  imagededup clean --group=1 --group=3             # Clean only groups 1 and 3`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without changing anything")
	cleanCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().IntSliceVarP(&groupIDs, "group", "g", nil, "Group IDs to clean (can be specified multiple times)")
	cleanCmd.Flags().StringVar(&cleanAction, "action", string(processor.ActionRemove), "Action: none, tag, collection, remove, delete")
	cleanCmd.Flags().StringVar(&cleanTarget, "target", "", "Destination folder for the collection action")
	cleanCmd.Flags().StringVar(&cleanStrategy, "strategy", string(strategy.Quality), "Keep strategy for groups without a saved plan")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	kind, err := processor.ParseAction(cleanAction)
	if err != nil {
		return err
	}
	if kind == processor.ActionCollection && cleanTarget == "" {
		return fmt.Errorf("the collection action needs --target")
	}
	strat, err := strategy.Parse(cleanStrategy)
	if err != nil {
		return fmt.Errorf("%w (choose from %s)", err, strategyNames())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	scan, groups, local, err := latestScan(store)
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}

	// Filter groups if --group is specified
	if len(groupIDs) > 0 {
		groupIDSet := make(map[int]bool)
		for _, id := range groupIDs {
			groupIDSet[id] = true
		}

		var filtered []*models.DuplicateGroup
		for _, group := range groups {
			if groupIDSet[group.ID] {
				filtered = append(filtered, group)
			}
		}

		if len(filtered) == 0 {
			fmt.Printf("No matching groups found for IDs: %v\n", groupIDs)
			fmt.Println("Run 'imagededup list' to see available group IDs.")
			return nil
		}

		groups = filtered
		fmt.Printf("Processing %d selected group(s): %v\n\n", len(groups), groupIDs)
	}

	p := processor.New(local, source.NewExecutor(local, store),
		processor.WithLogger(logger),
		processor.WithTag(cfg.Tag),
	)

	decisions, err := planFor(ctx, p, store, scan.ScanID, groups, strat)
	if err != nil {
		return err
	}

	// Collect items to act on
	var toRemove []string
	var totalSize int64
	for _, d := range decisions {
		for _, id := range d.RemoveItems {
			toRemove = append(toRemove, id)
			if meta, err := local.Metadata(ctx, id); err == nil {
				totalSize += meta.Size
			}
		}
	}

	if len(toRemove) == 0 || kind == processor.ActionNone {
		fmt.Println("Nothing to do.")
		return nil
	}

	action := processor.Action{Kind: kind, Target: cleanTarget}
	if kind == processor.ActionTag {
		action.Label = cfg.Tag
	}
	fmt.Printf("Will %s %d items (%s)\n\n", describeAction(action), len(toRemove), humanize.IBytes(uint64(totalSize)))

	if dryRun {
		fmt.Println("Items affected:")
		for _, id := range toRemove {
			fmt.Printf("  %s\n", id)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		fmt.Println("Run without --dry-run to apply it.")
		return nil
	}

	// Confirm unless --yes flag is set
	if !noConfirm {
		fmt.Printf("Are you sure you want to %s %d items? [y/N]: ", describeAction(action), len(toRemove))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	result, err := p.Apply(ctx, decisions, action, func(message string, current, total int) {
		fmt.Printf("\r[%d/%d] %s", current, total, shortenPath(message, 60))
	})
	fmt.Print("\r\033[K")
	if err != nil {
		return err
	}

	for _, id := range result.GoneIDs() {
		if err := store.DeleteItem(id); err != nil {
			logger.Warn("failed to forget item", "item", id, "error", err)
		}
	}

	rows := []tui.SummaryRow{
		{Label: "Action", Value: action.String()},
		{Label: "Tagged", Value: fmt.Sprint(result.Tagged)},
		{Label: "Moved", Value: fmt.Sprint(result.Moved)},
		{Label: "Deleted", Value: fmt.Sprint(result.Deleted)},
		{Label: "Skipped", Value: fmt.Sprint(result.Skipped), Warn: result.Skipped > 0},
		{Label: "Errors", Value: fmt.Sprint(result.Errors), Warn: result.Errors > 0},
	}
	if result.Aborted {
		rows = append(rows, tui.SummaryRow{Label: "Status", Value: "aborted", Warn: true})
	}
	fmt.Println(tui.RenderSummary(rows))

	for _, msg := range result.ErrorMessages {
		fmt.Fprintf(os.Stderr, "Failed: %s\n", msg)
	}
	return nil
}

// planFor returns the saved decision for each group, planning the groups
// that have none with strat
func planFor(ctx context.Context, p *processor.Processor, store *storage.Storage, scanID string, groups []*models.DuplicateGroup, strat strategy.Strategy) ([]models.DedupDecision, error) {
	saved, err := store.Decisions(scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	var missing []*models.DuplicateGroup
	for _, g := range groups {
		if _, ok := saved[g.ID]; !ok {
			missing = append(missing, g)
		}
	}
	if len(missing) > 0 {
		fresh, err := p.GenerateDecisions(ctx, missing, strat)
		if err != nil {
			return nil, err
		}
		for i, g := range missing {
			saved[g.ID] = fresh[i]
		}
	}

	decisions := make([]models.DedupDecision, 0, len(groups))
	for _, g := range groups {
		decisions = append(decisions, saved[g.ID])
	}
	return decisions, nil
}

func describeAction(a processor.Action) string {
	switch a.Kind {
	case processor.ActionTag:
		return fmt.Sprintf("tag as %q", a.Label)
	case processor.ActionCollection:
		return fmt.Sprintf("move to %s", a.Target)
	case processor.ActionRemove:
		return "move to " + source.TrashDir
	case processor.ActionDelete:
		return "permanently delete"
	default:
		return string(a.Kind)
	}
}
