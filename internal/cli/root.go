// Package cli provides the command-line interface for s3pub.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s3pub/s3pub/internal/config"
	"github.com/s3pub/s3pub/internal/constants"
	"github.com/s3pub/s3pub/internal/logging"
)

var (
	// Global flags
	cfgFile   string
	brokerURL string
	token     string
	verbose   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc

	// interruptReason holds the human-readable cause once a stop signal
	// arrived. Upload workers poll it between requests.
	interruptReason atomic.Value
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "Publish build artifacts to S3 through presigned URLs",
		Long: constants.AppName + ` ` + constants.Version + ` - artifact publisher.

Uploads local files to S3 using short-lived presigned URLs minted by an
external URL broker. The tool itself holds no cloud credentials: it only
needs a broker endpoint and an access token.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker-url", "", "URL broker endpoint (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Broker access token (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = constants.Version

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling uploads...\n", sig)
				interruptReason.Store(fmt.Sprintf("received signal %v", sig))
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newCheckCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return logger
}

// GetContext returns the global CLI context, cancelled on Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// InterruptReason reports why the run was asked to stop, or "" while running.
func InterruptReason() string {
	if v := interruptReason.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if brokerURL != "" {
		cfg.BrokerURL = brokerURL
	}
	if token != "" {
		cfg.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
