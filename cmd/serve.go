package cmd

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"imagededup/internal/processor"
	"imagededup/internal/server"
	"imagededup/internal/source"
	"imagededup/internal/storage"
)

var (
	serveAddr      string
	serveTimeout   time.Duration
	serveNoBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API for comparing and cleaning duplicates",
	Long: `Start a local HTTP server exposing the latest scan for review.

Endpoints:
  GET  /api/groups                   groups of the latest scan and the saved plan
  GET  /api/items/{id}/thumbnail     image bytes (escape "/" in ids as %2F)
  POST /api/plan                     {"strategy": "quality"}
  POST /api/groups/{id}/keep         {"item": "a.jpg"}
  POST /api/apply                    {"action": "remove"}
  POST /api/exclusions               {"group_id": 3} marks a group as keep-all
  POST /api/abort                    stop a running apply

The server shuts down after the idle timeout passes with no requests.

Example:
  imagededup serve                     # Listen on IMAGEDEDUP_ADDR (:8080)
  imagededup serve --addr :3000
  imagededup serve --timeout 10m       # 10 minute idle timeout`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", cfg.Addr, "Address to listen on (IMAGEDEDUP_ADDR)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 5*time.Minute, "Idle timeout (0 to disable)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "Don't open the groups endpoint in a browser")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Without a scan there is nothing to fetch thumbnails from yet
	var (
		src      processor.Source
		executor processor.Executor
	)
	scan, err := store.LatestScan()
	switch {
	case err == nil:
		root, err := store.ScanSource(scan.ScanID)
		if err != nil {
			return err
		}
		local := source.NewLocal(afero.NewOsFs(), root)
		src, executor = local, source.NewExecutor(local, store)
	case !errors.Is(err, storage.ErrNoScan):
		return err
	}

	p := processor.New(src, executor,
		processor.WithLogger(logger),
		processor.WithCacheSize(cfg.ThumbnailCache),
		processor.WithCacheTTL(10*time.Minute),
		processor.WithTag(cfg.Tag),
	)

	srv := server.New(server.Config{
		Addr:        serveAddr,
		IdleTimeout: serveTimeout,
		Store:       store,
		Processor:   p,
		Source:      src,
		Logger:      logger,
	})

	url := "http://localhost" + serveAddr
	if serveAddr != "" && serveAddr[0] != ':' {
		url = "http://" + serveAddr
	}
	fmt.Printf("Starting server at %s\n", url)
	fmt.Printf("Idle timeout: %v (resets on every request)\n", serveTimeout)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	// Open browser
	if !serveNoBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(url + "/api/groups")
		}()
	}

	return srv.Start(cmd.Context())
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Run()
}
