// s3pub - publish build artifacts to S3 through broker-minted presigned URLs.
package main

import (
	"os"

	"github.com/s3pub/s3pub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
