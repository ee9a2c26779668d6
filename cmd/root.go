package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"imagededup/internal/config"
	"imagededup/internal/match"
	"imagededup/internal/models"
	"imagededup/internal/source"
	"imagededup/internal/storage"
)

var (
	cfg = config.Load()

	dbPath    string
	cacheDir  string
	threshold float64
	workers   int
	algorithm string
	tagLabel  string
	logLevel  string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "imagededup",
	Short: "Find and manage duplicate images",
	Long: `imagededup finds exact and visually similar images.

Images are fingerprinted with a perceptual hash (phash, dhash, ahash, whash)
or a cryptographic digest (md5, sha1, sha256, sha512, sha3-256). Items whose
hashes are at least --threshold percent similar end up in the same group,
including through chains of similar items. A keep strategy then picks the
survivor of each group and clean applies an action to the rest.

Every flag can be seeded from an IMAGEDEDUP_* environment variable.

Example usage:
  imagededup scan ./photos               # Scan a folder for duplicates
  imagededup list                        # List duplicate groups
  imagededup plan --strategy largest     # Decide what to keep
  imagededup clean --dry-run             # Preview the plan
  imagededup clean --action remove       # Move duplicates to .trash
  imagededup serve                       # Review API for a browser UI`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg.DBPath = dbPath
		cfg.CacheDir = cacheDir
		cfg.Threshold = threshold
		cfg.Workers = workers
		cfg.Algorithm = algorithm
		cfg.Tag = tagLabel
		if err := cfg.Validate(); err != nil {
			return err
		}

		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "Path to SQLite database (IMAGEDEDUP_DB)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", cfg.CacheDir, "Hash cache directory, empty disables it (IMAGEDEDUP_CACHE_DIR)")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", cfg.Threshold, "Similarity percentage 0-100, higher = stricter (IMAGEDEDUP_THRESHOLD)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", cfg.Workers, "Number of parallel hashing workers (IMAGEDEDUP_WORKERS)")
	rootCmd.PersistentFlags().StringVar(&algorithm, "algorithm", cfg.Algorithm, "Hash algorithm (IMAGEDEDUP_ALGORITHM)")
	rootCmd.PersistentFlags().StringVar(&tagLabel, "tag", cfg.Tag, "Label used by the tag action (IMAGEDEDUP_TAG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

func openStore() (*storage.Storage, error) {
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// latestScan loads the newest scan with keep-all groups dropped and a
// source rooted at the folder it was run against
func latestScan(store *storage.Storage) (*models.ScanResult, []*models.DuplicateGroup, *source.Local, error) {
	scan, err := store.LatestScan()
	if errors.Is(err, storage.ErrNoScan) {
		return nil, nil, nil, fmt.Errorf("no scan recorded yet, run 'imagededup scan <folder>' first")
	}
	if err != nil {
		return nil, nil, nil, err
	}

	exclusions, err := store.Exclusions()
	if err != nil {
		return nil, nil, nil, err
	}

	root, err := store.ScanSource(scan.ScanID)
	if err != nil {
		return nil, nil, nil, err
	}

	groups := match.DropExcluded(scan.Groups, exclusions)
	return scan, groups, source.NewLocal(afero.NewOsFs(), root), nil
}
