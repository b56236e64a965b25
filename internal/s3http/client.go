// Package s3http is the low-level HTTP client that streams bytes to
// presigned S3 URLs and reads back ETags.
package s3http

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/s3pub/s3pub/internal/constants"
	"github.com/s3pub/s3pub/internal/digest"
	"github.com/s3pub/s3pub/internal/httpclient"
	"github.com/s3pub/s3pub/internal/logging"
)

// maxErrorBodySize bounds how much of an error response is read back.
const maxErrorBodySize = 64 * 1024

// Client uploads file bytes to presigned URLs. It is safe for concurrent use;
// the underlying HTTP client pools connections across upload workers.
type Client struct {
	httpClient       *http.Client
	checkConsistency bool
	logger           *logging.Logger
}

// NewClient creates a Client on top of the shared pooled HTTP client.
func NewClient(httpClient *http.Client, checkConsistency bool, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		httpClient:       httpClient,
		checkConsistency: checkConsistency,
		logger:           logger,
	}
}

// PutObject uploads the whole file to the presigned URL and returns the ETag.
// Each call reopens the file and recomputes the digest, so a retried call
// always streams a fresh, fully digested body.
func (c *Client) PutObject(ctx context.Context, url, path string) (string, error) {
	body, err := digest.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return c.put(ctx, url, body, contentType(path))
}

// PutPart uploads [offset, offset+length) of the file and returns the part ETag.
func (c *Client) PutPart(ctx context.Context, url, path string, offset, length int64) (string, error) {
	body, err := digest.OpenSlice(path, offset, length)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return c.put(ctx, url, body, "")
}

// HeadObject fetches the current ETag of the object behind the presigned URL.
func (c *Client) HeadObject(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", httpclient.WrapTransport("HEAD "+stripQuery(url), err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", readError(resp)
	}
	return etagFrom(resp)
}

func (c *Client) put(ctx context.Context, url string, body *digest.Reader, cType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = body.Len()
	if cType != "" {
		req.Header.Set("Content-Type", cType)
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", httpclient.WrapTransport("PUT "+stripQuery(url), err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", readError(resp)
	}

	etag, err := etagFrom(resp)
	if err != nil {
		if c.checkConsistency {
			return "", err
		}
		// Without an ETag and with the check disabled, the local digest is
		// the best available identity for the uploaded bytes.
		return body.HexDigest(), nil
	}

	if c.checkConsistency {
		if d := body.HexDigest(); d != etag {
			return "", &ConsistencyError{Digest: d, ETag: etag}
		}
		c.logger.Debug().Msg("Consistency check successful")
	}
	return etag, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", constants.UserAgent())
	req.Header.Set("Accept", "application/xml")
}

// etagFrom parses the ETag response header, stripping surrounding quotes.
func etagFrom(resp *http.Response) (string, error) {
	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	if etag == "" {
		return "", &MissingETagError{}
	}
	return etag, nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return parseErrorBody(resp.StatusCode, body)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()
}

// contentType picks a Content-Type by file suffix.
func contentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// stripQuery removes the query string so presigned credentials never reach logs.
func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
