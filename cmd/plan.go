package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imagededup/internal/processor"
	"imagededup/internal/strategy"
)

var (
	planStrategy string
	planJSON     bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Decide which item of each group to keep",
	Long: `Apply a keep strategy to every group of the latest scan and save the
resulting plan. Clean and the review API use the saved plan.

Strategies:
  first     keep the first item of the group
  largest   keep the largest file
  smallest  keep the smallest file
  oldest    keep the item taken (or modified) first
  newest    keep the item taken (or modified) last
  quality   keep the highest resolution, preferring lossless formats and EXIF
  manual    keep nothing automatically; decide per group in the review UI
  keep_all  treat every group as a false positive

Example:
  imagededup plan                      # quality (default)
  imagededup plan --strategy oldest
  imagededup plan --strategy largest --json`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planStrategy, "strategy", string(strategy.Quality), "Keep strategy")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	strat, err := strategy.Parse(planStrategy)
	if err != nil {
		return fmt.Errorf("%w (choose from %s)", err, strategyNames())
	}

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

	p := processor.New(local, nil, processor.WithLogger(logger))
	decisions, err := p.GenerateDecisions(cmd.Context(), groups, strat)
	if err != nil {
		return err
	}
	if err := store.SaveDecisions(scan.ScanID, groups, decisions); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}

	if planJSON {
		return printJSON(decisions)
	}

	removals := 0
	for i, d := range decisions {
		removals += len(d.RemoveItems)
		keep := d.KeepItem
		if keep == "" {
			keep = "-"
		}
		fmt.Printf("Group #%-4d keep %-40s remove %d  %s\n",
			groups[i].ID, shortenPath(keep, 40), len(d.RemoveItems), listDimStyle.Render(d.Reason))
	}

	fmt.Println()
	fmt.Printf("Saved plan for %d groups (%d items to remove) using %s\n", len(decisions), removals, strat)
	fmt.Println("Run 'imagededup clean --dry-run' to preview it")
	return nil
}

func strategyNames() string {
	var names []string
	for _, s := range strategy.All() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
