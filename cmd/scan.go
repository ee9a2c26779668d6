package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"imagededup/internal/hashcache"
	"imagededup/internal/match"
	"imagededup/internal/models"
	"imagededup/internal/processor"
	"imagededup/internal/source"
	"imagededup/internal/tui"
)

var scanTUI bool

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Scan a folder for duplicate images",
	Long: `Scan a folder recursively for images and detect duplicates.

The scan will:
1. Find all supported images (jpg, png, gif, webp, etc.)
2. Hash each image with the selected algorithm
3. Group items whose hashes are at least --threshold percent similar
4. Store results in the database for later use

Groups previously marked "keep all" through the review API are left out.
Press Ctrl+C to stop early; items hashed so far are still grouped.

Example:
  imagededup scan ./photos
  imagededup scan ./photos --algorithm dhash --threshold 90
  imagededup scan ./photos --algorithm sha256 --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanTUI, "tui", false, "Show an interactive progress view")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	folder := args[0]

	// Resolve absolute path
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Check folder exists
	info, err := os.Stat(absFolder)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absFolder)
	}

	algo, err := models.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	local := source.NewLocal(afero.NewOsFs(), absFolder)
	items, err := local.Discover(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	opts := []processor.Option{
		processor.WithThreshold(cfg.Threshold),
		processor.WithWorkers(cfg.Workers),
		processor.WithLogger(logger),
		processor.WithCacheSize(cfg.ThumbnailCache),
		processor.WithTag(cfg.Tag),
	}
	if cfg.CacheDir != "" {
		cache, err := hashcache.Open(hashcache.DefaultConfig(cfg.CacheDir))
		if err != nil {
			logger.Warn("hash cache unavailable, hashing everything", "dir", cfg.CacheDir, "error", err)
		} else {
			defer cache.Close()
			opts = append(opts, processor.WithHashCache(cache))
		}
	}
	p := processor.New(local, source.NewExecutor(local, store), opts...)

	fmt.Printf("Scanning: %s\n", absFolder)
	fmt.Printf("Algorithm: %s  Threshold: %.2f%%  Workers: %d\n\n", algo, cfg.Threshold, cfg.Workers)

	var res *models.ScanResult
	if scanTUI {
		res, err = scanWithTUI(ctx, p, items, algo)
	} else {
		res, err = scanWithLine(ctx, p, items, algo)
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	exclusions, err := store.Exclusions()
	if err != nil {
		return err
	}
	res.Groups = match.FilterExcluded(res.Groups, exclusions)

	if err := store.SaveScan(res, absFolder); err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}

	printScanSummary(res, items)

	if len(res.Groups) > 0 {
		fmt.Println()
		fmt.Println("Run 'imagededup list' to see duplicate groups")
		fmt.Println("Run 'imagededup plan' to decide which items to keep")
	}
	return nil
}

func scanWithLine(ctx context.Context, p *processor.Processor, items []models.Item, algo models.Algorithm) (*models.ScanResult, error) {
	lastLine := ""
	clearLine := func() {
		if lastLine != "" {
			fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
		}
	}

	res, err := p.Scan(ctx, items, algo, func(message string, current, total int) {
		clearLine()
		if len(message) > 60 {
			message = "..." + message[len(message)-57:]
		}
		lastLine = fmt.Sprintf("Progress: %d/%d  %s", current, total, message)
		fmt.Print(lastLine)
	})

	clearLine()
	return res, err
}

func scanWithTUI(ctx context.Context, p *processor.Processor, items []models.Item, algo models.Algorithm) (*models.ScanResult, error) {
	updates := make(chan tui.Progress, 64)
	program := tea.NewProgram(tui.NewModel("imagededup", updates))

	uiDone := make(chan struct{})
	go func() {
		_, _ = program.Run()
		close(uiDone)
		// Quitting the view stops the scan too
		p.Abort()
	}()

	res, err := p.Scan(ctx, items, algo, tui.Sink(updates))
	close(updates)
	<-uiDone
	return res, err
}

func printScanSummary(res *models.ScanResult, items []models.Item) {
	sizes := make(map[string]int64, len(items))
	for _, item := range items {
		sizes[item.ID] = item.Size
	}

	var reclaimable int64
	for _, g := range res.Groups {
		for _, id := range g.Items {
			if id != g.Pivot {
				reclaimable += sizes[id]
			}
		}
	}

	rows := []tui.SummaryRow{
		{Label: "Scan", Value: res.ScanID},
		{Label: "Total items", Value: humanize.Comma(int64(res.TotalItems))},
		{Label: "Hashed", Value: humanize.Comma(int64(res.ItemsHashed))},
		{Label: "Duplicate groups", Value: humanize.Comma(int64(len(res.Groups)))},
		{Label: "Duplicates found", Value: humanize.Comma(int64(res.DuplicateCount()))},
		{Label: "Reclaimable", Value: humanize.IBytes(uint64(reclaimable))},
		{Label: "Errors", Value: fmt.Sprint(res.ErrorCount()), Warn: res.ErrorCount() > 0},
		{Label: "Duration", Value: res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond).String()},
	}
	if res.Aborted {
		rows = append(rows, tui.SummaryRow{Label: "Status", Value: "aborted", Warn: true})
	}

	fmt.Println()
	fmt.Println(tui.RenderSummary(rows))

	for i, msg := range res.Errors {
		if i == 5 {
			fmt.Printf("  ... and %d more errors\n", len(res.Errors)-i)
			break
		}
		fmt.Printf("  %s\n", msg)
	}
}
