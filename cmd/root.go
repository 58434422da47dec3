package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imgurfetch/imgur"
	"imgurfetch/internal"
)

var (
	configPath  string
	clientID    string
	concurrency int
	rateLimit   string
	proxyURL    string
	timeout     time.Duration
	quiet       bool
	debug       bool
	logLevel    string
	logFile     string
	config      = internal.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:     "imgurfetch",
	Short:   "Browse, upload and fetch images of an Imgur account",
	Version: "v1.0.0",
	Long: `imgurfetch is a command line client for the Imgur API. It signs in with
the implicit OAuth flow, lists and counts the account's images, uploads and
deletes them, and fetches thumbnails and full images with pause and resume
support.

Examples:
  imgurfetch login
  imgurfetch callback 'https://example.com/cb#access_token=...'
  imgurfetch list --page 0
  imgurfetch upload --title holiday beach.png
  imgurfetch thumbs --out ./thumbs -j 4
  imgurfetch get https://imgur.com/AbCdEf1

Environment Variables:
  IMGURFETCH_CLIENT_ID    Registered application client id
  IMGURFETCH_CONCURRENCY  Number of dispatcher lanes (1-32)
  IMGURFETCH_TIMEOUT      Request header timeout (e.g. 30s)
  IMGURFETCH_PROXY        Proxy URL
  IMGURFETCH_CREDENTIALS  Path of the stored credentials file
  IMGURFETCH_LOG_LEVEL    debug, info, warn or error

DISCLAIMER: Respect Imgur's Terms of Service and copyright laws.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogDebug("Configuration loaded: base=%s lanes=%d timeout=%v rate=%d thumb=%d",
			config.BaseURL, config.Concurrency, config.RequestTimeout, config.RateLimit, config.ThumbnailSize)
		return nil
	},
}

// loadConfiguration layers defaults, the YAML file, the environment and
// explicitly set flags, in that order
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()

	path := configPath
	if path == "" {
		path = internal.DefaultConfigFile()
	}
	if err := config.LoadFromFile(path); err != nil {
		return err
	}
	config.LoadFromEnv()

	flags := cmd.Flags()
	if flags.Changed("client-id") {
		config.ClientID = clientID
	}
	if flags.Changed("concurrency") {
		config.Concurrency = concurrency
	}
	if flags.Changed("limit-rate") {
		rate, err := internal.ParseByteRate(rateLimit)
		if err != nil {
			return internal.NewValidationErrorWithValue("rate_limit", "invalid format", rateLimit).
				WithSuggestion("Use formats like 1M (1 MB/s), 500K (500 KB/s) or 1024 (1024 bytes/s)")
		}
		config.RateLimit = rate
	}
	if flags.Changed("proxy") {
		config.ProxyURL = proxyURL
	}
	if flags.Changed("timeout") {
		config.RequestTimeout = timeout
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

// newClient builds the client context for one command run and loads the
// stored credentials into it
func newClient() (*imgur.Client, error) {
	cc, err := imgur.NewClientContext(config)
	if err != nil {
		return nil, err
	}
	if err := cc.LoadCredentials(); err != nil {
		cc.Close()
		return nil, err
	}
	return imgur.NewClient(cc), nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
			if !config.QuietMode {
				fmt.Fprintf(os.Stderr, "\nReceived %v signal, shutting down gracefully...\n", sig)
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// say prints progress chatter unless quiet mode is on
func say(format string, args ...interface{}) {
	if !config.QuietMode {
		fmt.Printf(format, args...)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path of the YAML config file (default $XDG_CONFIG_HOME/imgurfetch/config.yaml)")
	flags.StringVar(&clientID, "client-id", "", "Registered application client id (env: IMGURFETCH_CLIENT_ID)")
	flags.IntVarP(&concurrency, "concurrency", "j", config.Concurrency, "Number of dispatcher lanes (1-32) (env: IMGURFETCH_CONCURRENCY)")
	flags.StringVarP(&rateLimit, "limit-rate", "r", "", "Bandwidth limit (e.g., 5M for 5MB/s)")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: IMGURFETCH_PROXY)")
	flags.DurationVar(&timeout, "timeout", config.RequestTimeout, "Time to wait for response headers (env: IMGURFETCH_TIMEOUT)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bar output")

	// Logging flags
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: IMGURFETCH_DEBUG)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: IMGURFETCH_LOG_LEVEL)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: IMGURFETCH_LOG_FILE)")

	rootCmd.AddCommand(loginCmd, callbackCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(listCmd, countCmd, uploadCmd, deleteCmd, getCmd, thumbsCmd)
}

func Execute() error {
	err := rootCmd.Execute()

	var apiErr *internal.APIError
	var verr *internal.ValidationError
	switch {
	case errors.As(err, &apiErr):
		internal.LogAPIError(apiErr)
	case errors.As(err, &verr):
		internal.LogValidationError(verr)
	}
	return err
}
