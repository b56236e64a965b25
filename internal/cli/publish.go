// Package cli provides the artifact publish command.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s3pub/s3pub/internal/broker"
	"github.com/s3pub/s3pub/internal/httpclient"
	"github.com/s3pub/s3pub/internal/progress"
	"github.com/s3pub/s3pub/internal/publish"
	"github.com/s3pub/s3pub/internal/s3http"
)

// newPublishCmd creates the 'publish' command.
func newPublishCmd() *cobra.Command {
	var pathPrefix string
	var threads int
	var noMultipart bool
	var noConsistencyCheck bool

	cmd := &cobra.Command{
		Use:   "publish <file>[=<artifact-path>] [file...]",
		Short: "Upload files to S3 via broker-minted presigned URLs",
		Long: `Upload one or more local files as artifacts.

Each argument is a local file, optionally followed by '=' and the logical
artifact path it should be stored under. A path ending in '/' is treated as
a directory and the file's name is appended. Without a mapping the file is
stored under its base name.

Examples:
  # Upload under the base name
  s3pub publish build.log

  # Upload into a logical directory
  s3pub publish dist/app.tar.gz=releases/

  # Upload under an explicit artifact path, with a key prefix
  s3pub publish report.html=qa/report.html --prefix build-42

  # Glob expansion handled by the shell
  s3pub publish out/*.zip=archives/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			files, err := parseFileArgs(args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if pathPrefix != "" {
				cfg.PathPrefix = pathPrefix
			}
			if threads > 0 {
				cfg.NThreads = threads
			}
			if noMultipart {
				cfg.MultipartEnabled = false
			}
			if noConsistencyCheck {
				cfg.ConsistencyCheckEnabled = false
			}

			httpClient := httpclient.New(cfg.ConnectionTimeout, cfg.NThreads)
			brokerClient := broker.NewClient(cfg.BrokerURL, cfg.Token, httpClient, logger)
			defer brokerClient.Close()
			s3Client := s3http.NewClient(httpClient, cfg.ConsistencyCheckEnabled, logger)

			var listener progress.Listener = progress.NewLogListener(logger)
			var bar *progress.BarListener
			if progress.IsTerminal(os.Stderr) {
				bar = progress.NewBarListener(len(files), os.Stderr)
				listener = progress.Multi{listener, bar}
			}

			uploader := publish.NewUploader(cfg, brokerClient, s3Client, publish.UploaderOptions{
				Listener:    listener,
				Interrupter: InterruptReason,
				Logger:      logger,
			})

			infos, err := uploader.Publish(GetContext(), files)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			if len(infos) == 0 && InterruptReason() != "" {
				logger.Info().Msg("Publishing cancelled, nothing was finalized")
				return nil
			}

			sort.Slice(infos, func(i, j int) bool { return infos[i].ArtifactPath < infos[j].ArtifactPath })
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", info.ArtifactPath, info.Size, info.Digest)
			}
			logger.Infof("Published %d artifact(s)", len(infos))
			return nil
		},
	}

	cmd.Flags().StringVar(&pathPrefix, "prefix", "", "Object key prefix (overrides config)")
	cmd.Flags().IntVar(&threads, "threads", 0, "Upload worker count (0 = config value)")
	cmd.Flags().BoolVar(&noMultipart, "no-multipart", false, "Disable multipart uploads")
	cmd.Flags().BoolVar(&noConsistencyCheck, "no-consistency-check", false, "Skip digest verification against S3 ETags")

	return cmd
}

// parseFileArgs turns 'file[=artifact-path]' arguments into the upload map.
func parseFileArgs(args []string) (map[string]string, error) {
	files := make(map[string]string, len(args))
	for _, arg := range args {
		filePath := arg
		logicalPath := ""
		if i := strings.IndexByte(arg, '='); i >= 0 {
			filePath = arg[:i]
			logicalPath = arg[i+1:]
		}
		if filePath == "" {
			return nil, fmt.Errorf("invalid argument %q: empty file path", arg)
		}
		abs, err := filepath.Abs(filePath)
		if err != nil {
			return nil, fmt.Errorf("invalid file path %q: %w", filePath, err)
		}
		files[abs] = logicalPath
	}
	return files, nil
}
