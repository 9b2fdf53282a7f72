package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrad/modelgrab/internal/client"
	"github.com/kestrad/modelgrab/internal/config"
	"github.com/kestrad/modelgrab/internal/download"
	"github.com/kestrad/modelgrab/internal/output"
	"github.com/kestrad/modelgrab/internal/utils"
)

var (
	outputPath   string
	configFile   string
	apiKey       string
	manifestFile string
	chunks       int
	batchWorkers int
	timeout      time.Duration
	headers      []string
	resume       bool
	cleanOutput  bool
	debug        bool
)

var ModelgrabVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "modelgrab",
	Short:   "Modelgrab fetches model and image assets from a content API",
	Version: ModelgrabVersion,
	Args:    cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		notify := output.Terminal{}
		if cleanOutput {
			if err := utils.Clean(outputPath); err != nil {
				notify.Error("Error cleaning up temporary files")
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
			return
		}
		if len(args) == 0 && manifestFile == "" {
			notify.Error("No URL or manifest provided")
			os.Exit(1)
		}
		if manifestFile != "" && len(args) > 0 {
			notify.Error("Cannot specify url argument and --manifest together, choose one")
			os.Exit(1)
		}

		provider := buildProvider()
		registry := client.NewRegistry(provider)
		engine := download.New(registry, provider)
		ctx := context.Background()

		if manifestFile != "" {
			runBatch(ctx, engine, notify)
			return
		}
		runSingle(ctx, engine, args[0], notify)
	},
}

// buildProvider layers flag overrides on top of the config file (when one
// exists) and keeps the result in a settable provider.
func buildProvider() *config.Static {
	cfg := config.Default()
	if configFile != "" {
		if loaded, err := config.Load(configFile); err == nil {
			cfg = loaded
		} else {
			output.PrintWarning(fmt.Sprintf("Config file unreadable, using defaults: %v", err))
		}
	}
	if key := os.Getenv("MODELGRAB_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if chunks > 0 {
		cfg.MaxParallelChunks = chunks
	}
	if batchWorkers > 0 {
		cfg.BatchWorkers = batchWorkers
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return config.NewStatic(cfg)
}

func runSingle(ctx context.Context, engine *download.Engine, url string, notify output.Notifier) {
	if _, err := u.Parse(url); err != nil {
		notify.Error("Invalid URL format")
		os.Exit(1)
	}
	dest := outputPath
	if dest == "" {
		if _, name, _, err := engine.RemoteFileInfo(ctx, url); err == nil && name != "" {
			dest = name
		} else {
			parsed, _ := u.Parse(url)
			dest = filepath.Base(parsed.Path)
		}
	}
	if dest == "" || dest == "." || dest == "/" {
		notify.Error("Could not infer output path, pass --output")
		os.Exit(1)
	}
	if !resume {
		if _, err := os.Stat(dest); err == nil {
			dest = utils.RenewOutputPath(dest)
		}
	}

	progress := func(downloaded, total int64, speed string) {
		output.ProgressLine(downloaded, total, speed)
	}
	var ok bool
	var err error
	if resume {
		ok, err = engine.DownloadFileWithResume(ctx, url, dest, progress, utils.ParseHeaderArgs(headers))
	} else {
		ok, err = engine.DownloadLargeFile(ctx, url, dest, progress)
	}
	output.EndProgress()
	if err != nil {
		var authErr *client.AuthError
		if errors.As(err, &authErr) {
			notify.Error("Authentication required: set an API key with --api-key or MODELGRAB_API_KEY")
		} else {
			notify.Error(fmt.Sprintf("Download failed: %v", err))
		}
		os.Exit(1)
	}
	if !ok {
		notify.Warning("Downloaded size deviates from the reported total; file kept for a future resume")
		os.Exit(1)
	}
	output.PrintSuccess(fmt.Sprintf("Saved %s", dest))
}

func runBatch(ctx context.Context, engine *download.Engine, notify output.Notifier) {
	tasks, err := download.ReadImageList(manifestFile)
	if err != nil {
		notify.Error(fmt.Sprintf("Failed to read manifest: %v", err))
		os.Exit(1)
	}
	progress := func(done, total int64, desc string) {
		output.BatchLine(done, total, desc)
	}
	successCount, err := engine.DownloadImages(ctx, tasks, progress)
	output.EndProgress()
	if err != nil {
		var authErr *client.AuthError
		if errors.As(err, &authErr) {
			notify.Error(fmt.Sprintf("%v — set an API key with --api-key or MODELGRAB_API_KEY", err))
		} else {
			notify.Error(fmt.Sprintf("Batch finished with errors: %v", err))
		}
	}
	if successCount < len(tasks) {
		notify.Warning(fmt.Sprintf("Downloaded %d of %d images", successCount, len(tasks)))
		if err != nil {
			os.Exit(1)
		}
		return
	}
	output.PrintSuccess(fmt.Sprintf("Downloaded %d images", successCount))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the server if not provided)")
	rootCmd.Flags().StringVarP(&configFile, "config", "f", "", "Path to modelgrab.yaml config file")
	rootCmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "Content API key (overrides config file and environment)")
	rootCmd.Flags().StringVarP(&manifestFile, "manifest", "l", "", "Path to YAML manifest of image downloads")
	rootCmd.Flags().IntVarP(&chunks, "chunks", "c", 0, "Number of parallel chunks for large files")
	rootCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "Number of parallel workers for image batches")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Per-request timeout (eg. 30s, 5m)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Trace: 1'); can be specified multiple times")
	rootCmd.Flags().BoolVarP(&resume, "resume", "r", false, "Resume a previous download of the same output path")

	// flags without shorthand
	rootCmd.Flags().BoolVar(&cleanOutput, "clean", false, "Clean up temporary part files for provided output path")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
