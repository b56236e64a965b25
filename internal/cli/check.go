// Package cli provides the broker connectivity check command.
package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/s3pub/s3pub/internal/broker"
	"github.com/s3pub/s3pub/internal/constants"
	"github.com/s3pub/s3pub/internal/httpclient"
	"github.com/s3pub/s3pub/internal/logging"
)

// retryLogger adapts the CLI logger to the retryablehttp.LeveledLogger
// interface. Only errors and warnings are surfaced.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorf("%s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnf("%s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// newCheckCmd creates the 'check' command.
func newCheckCmd() *cobra.Command {
	var objectKey string
	var ttlSeconds int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the URL broker is reachable",
		Long: `Probe the configured URL broker.

Without flags the command verifies the endpoint answers over HTTP. With
--object-key it additionally asks the broker to mint one presigned URL,
exercising authentication and the full request path.

Examples:
  # Reachability only
  s3pub check

  # Full round trip: mint a URL for a throwaway key
  s3pub check --object-key healthcheck/probe.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			retryClient := retryablehttp.NewClient()
			retryClient.HTTPClient = httpclient.New(cfg.ConnectionTimeout, 1)
			retryClient.RetryMax = cfg.MaxAttempts - 1
			retryClient.RetryWaitMin = cfg.RetryBaseDelay
			retryClient.RetryWaitMax = 30 * time.Second
			retryClient.Logger = &retryLogger{logger: logger}

			req, err := retryablehttp.NewRequestWithContext(GetContext(), http.MethodGet, cfg.BrokerURL, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", constants.UserAgent())
			if cfg.Token != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Token)
			}

			resp, err := retryClient.Do(req)
			if err != nil {
				return fmt.Errorf("url broker %s is unreachable: %w", cfg.BrokerURL, err)
			}
			resp.Body.Close()
			logger.Infof("Url broker %s answered with HTTP %d", cfg.BrokerURL, resp.StatusCode)

			if objectKey == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "broker reachable")
				return nil
			}

			brokerClient := broker.NewClient(cfg.BrokerURL, cfg.Token, httpclient.New(cfg.ConnectionTimeout, 1), logger)
			defer brokerClient.Close()

			desc, err := brokerClient.FetchURL(GetContext(), objectKey, "", time.Duration(ttlSeconds)*time.Second)
			if err != nil {
				return fmt.Errorf("failed to mint presigned url for %s: %w", objectKey, err)
			}
			if len(desc.Parts) == 0 {
				return fmt.Errorf("broker returned no url for %s", objectKey)
			}

			url := desc.Parts[0].URL
			if i := strings.IndexByte(url, '?'); i >= 0 {
				url = url[:i]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "minted presigned url for %s -> %s\n", objectKey, url)
			return nil
		},
	}

	cmd.Flags().StringVar(&objectKey, "object-key", "", "Mint one presigned URL for this key as a full round-trip probe")
	cmd.Flags().IntVar(&ttlSeconds, "ttl", 60, "TTL in seconds for the probe URL")

	return cmd
}
