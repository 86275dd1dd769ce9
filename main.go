package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	monitop "github.com/jondoveston/monitop/internal"
	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/logging"
	"github.com/jondoveston/monitop/internal/prefs"
	"github.com/jondoveston/monitop/internal/schedule"
	"github.com/jondoveston/monitop/internal/telemetry"
)

var version = "dev"

// configKeys are the viper keys that can also be set as MONITOP_* variables
var configKeys = []string{
	"url", "api_prefix", "interval", "unit", "timeout",
	"prefs_file", "log_file", "log_level", "telemetry_addr",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "monitop [service-url]",
	Short: "Terminal dashboard for services instrumented with monigo",
	Long: `monitop polls the monitoring API of a Go service and shows its runtime,
load, memory and health statistics in an interactive terminal dashboard.

Examples:
  monitop http://localhost:8080
  monitop --url http://orders.lan:8080 --interval 1
  MONITOP_URL=http://orders.lan:8080 monitop
  monitop snapshot --format prom http://localhost:8080
  monitop devserver --addr :8080`,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// set here rather than in the literal: run reaches rootCmd through loadPrefs
	rootCmd.RunE = run

	flags := rootCmd.PersistentFlags()
	flags.String("url", "", "Service URL")
	flags.String("api-prefix", "", "API prefix, detected when unset (default "+client.DefaultPrefix+")")
	flags.Int("interval", schedule.DefaultInterval, "Refresh interval in minutes (1-60)")
	flags.String("unit", prefs.UnitKB, "Memory unit, KB or MB")
	flags.Duration("timeout", client.DefaultTimeout, "Per request timeout")
	flags.String("prefs-file", "", "Where dashboard preferences are saved")
	flags.String("log-file", "", "Dashboard log file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("telemetry-addr", "", "Serve monitop's own metrics on this address, e.g. :9091")
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/monitop/config.yaml)")
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")

	// dashes in flags become underscores in viper
	for _, key := range configKeys {
		viper.BindPFlag(key, flags.Lookup(flagName(key)))
	}

	viper.SetEnvPrefix("monitop")
	viper.AutomaticEnv()

	// Explicitly bind environment variables (ensures they take precedence)
	for _, key := range configKeys {
		if err := viper.BindEnv(key); err != nil {
			log.Fatalf("failed to bind %s: %v", key, err)
		}
	}

	rootCmd.AddCommand(snapshotCmd, goroutinesCmd, historyCmd, reportCmd, functionsCmd, watchCmd, devserverCmd)
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// loadConfig reads the config file, then lets the environment override it and the flags
func loadConfig(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("config")
	explicit := file != ""
	if !explicit {
		if dir, err := os.UserConfigDir(); err == nil {
			file = filepath.Join(dir, "monitop", "config.yaml")
		}
	}
	if file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
				return fmt.Errorf("failed to read config %s: %w", file, err)
			}
		}
	}

	// Environment variables take precedence - explicitly override flags if env vars are set
	for _, key := range configKeys {
		if value, ok := os.LookupEnv("MONITOP_" + strings.ToUpper(key)); ok && value != "" {
			viper.Set(key, value)
		}
	}
	return nil
}

// serviceURL resolves the service URL. The positional argument is only used
// when neither a flag nor the environment set one.
func serviceURL(args []string) (string, error) {
	u := viper.GetString("url")
	if u == "" && len(args) == 1 {
		u = args[0]
	}
	if u == "" {
		return "", errors.New("a service url must be given as an argument, --url or MONITOP_URL")
	}
	return u, nil
}

// signalContext ends on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newClient connects to the service, detecting the API prefix unless one is configured
func newClient(ctx context.Context, rawURL string, logger logr.Logger, metrics *telemetry.Metrics) (*client.Client, error) {
	opts := []client.Option{
		client.WithTimeout(viper.GetDuration("timeout")),
		client.WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, client.WithObserver(metrics))
	}

	if viper.IsSet("api_prefix") && viper.GetString("api_prefix") != "" {
		base, err := client.ParseServiceURL(rawURL)
		if err != nil {
			return nil, err
		}
		return client.New(base.String(), append(opts, client.WithPrefix(viper.GetString("api_prefix")))...)
	}

	c, _, err := client.Detect(ctx, rawURL, logger, opts...)
	return c, err
}

// loadPrefs reads the saved prefs; flags and environment given explicitly win
func loadPrefs(logger logr.Logger) (*prefs.Store, prefs.Prefs, error) {
	path := viper.GetString("prefs_file")
	if path == "" {
		var err error
		if path, err = prefs.DefaultPath(); err != nil {
			return nil, prefs.Prefs{}, err
		}
	}
	store := prefs.NewStore(path, logger)

	p, err := store.Load()
	if err != nil {
		logger.Error(err, "using default preferences", "path", path)
	}
	if rootCmd.PersistentFlags().Changed("interval") || os.Getenv("MONITOP_INTERVAL") != "" {
		p.RefreshInterval = viper.GetInt("interval")
	}
	if rootCmd.PersistentFlags().Changed("unit") || os.Getenv("MONITOP_UNIT") != "" {
		p.SelectedUnit = viper.GetString("unit")
	}
	return store, p.Normalize(), nil
}

// defaultLogFile is monitop.log under $XDG_STATE_HOME
func defaultLogFile() (string, error) {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "state")
	}
	dir = filepath.Join(dir, "monitop")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "monitop.log"), nil
}

func run(cmd *cobra.Command, args []string) error {
	// Handle --version flag first
	versionFlag, _ := cmd.Flags().GetBool("version")
	if versionFlag {
		fmt.Printf("monitop version %s\n", version)
		return nil
	}

	rawURL, err := serviceURL(args)
	if err != nil {
		return err
	}

	// the dashboard owns the terminal, so logs go to a file
	logFile := viper.GetString("log_file")
	if logFile == "" {
		if logFile, err = defaultLogFile(); err != nil {
			return fmt.Errorf("failed to find a log file location: %w", err)
		}
	}
	logger, flush, err := logging.New(viper.GetString("log_level"), logFile)
	if err != nil {
		return err
	}
	defer flush()
	logger.Info("starting monitop", "version", version, "url", rawURL)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	metrics := telemetry.New()
	c, err := newClient(ctx, rawURL, logger, metrics)
	if err != nil {
		return err
	}
	store, p, err := loadPrefs(logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if addr := viper.GetString("telemetry_addr"); addr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, addr, logger)
		})
	}
	g.Go(func() error {
		// stops the telemetry server once the dashboard quits
		defer cancel()
		return monitop.Dashboard(ctx, monitop.Config{
			Source:    c,
			Prefs:     p,
			Store:     store,
			Telemetry: metrics,
			Logger:    logger,
		})
	})
	return g.Wait()
}
