// Package broker talks to the external URL broker that mints presigned S3
// URLs and tracks multipart upload ids on behalf of the agent.
package broker

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/s3pub/s3pub/internal/constants"
	"github.com/s3pub/s3pub/internal/httpclient"
	"github.com/s3pub/s3pub/internal/logging"
)

// Finalization form parameter names.
const (
	paramObjectKey        = "OBJECT_KEY"
	paramObjectKeyBase64  = "OBJECT_KEY_BASE64"
	paramFinishUpload     = "FINISH_UPLOAD"
	paramUploadSuccessful = "UPLOAD_SUCCESSFUL"
	paramETags            = "ETAGS"
)

const maxResponseSize = 8 * 1024 * 1024

// Client is the HTTP client for the URL broker. One Client serves one upload
// batch: every request carries the same correlation id so broker-side logs
// line up with the batch. After Close, every call fails with ErrClientShutdown.
type Client struct {
	endpoint      string
	token         string
	httpClient    *http.Client
	correlationID string
	logger        *logging.Logger

	shutdown atomic.Bool

	mu           sync.Mutex
	nodeID       string
	nodeIDWarned bool
}

// NewClient creates a broker client for one coordinator instance.
func NewClient(endpoint, token string, httpClient *http.Client, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		endpoint:      strings.TrimSuffix(endpoint, "/"),
		token:         token,
		httpClient:    httpClient,
		correlationID: uuid.NewString(),
		logger:        logger,
	}
}

// CorrelationID returns the id attached to every request of this client.
func (c *Client) CorrelationID() string {
	return c.correlationID
}

// FetchRegular requests presigned URLs for a batch of object keys. The caller
// is responsible for keeping batches within the configured chunk size; the
// client never splits internally.
func (c *Client) FetchRegular(ctx context.Context, objectKeys []string, digests map[string]string) ([]PresignedURL, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	req := newRequest()
	req.ObjectKeys = &objectKeysXML{}
	for _, key := range objectKeys {
		req.ObjectKeys.Keys = append(req.ObjectKeys.Keys, keyXML{Value: key, Digest: digests[key]})
	}

	body, err := c.postXML(ctx, req, objectKeys)
	if err != nil {
		return nil, err
	}
	return parseListResponse(body)
}

// FetchURL requests a presigned URL for a single object key, optionally with
// a digest and a custom TTL.
func (c *Client) FetchURL(ctx context.Context, objectKey, digest string, ttl time.Duration) (*PresignedURL, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	req := newRequest()
	req.ObjectKey = &objectKeyXML{Value: objectKey, Digest: digest, TTL: ttlSeconds(ttl)}

	body, err := c.postXML(ctx, req, []string{objectKey})
	if err != nil {
		return nil, err
	}
	return c.findKey(body, objectKey)
}

// FetchMultipart requests per-part presigned URLs for a multipart upload.
// The broker allocates an uploadId when none is supplied.
func (c *Client) FetchMultipart(ctx context.Context, objectKey string, partDigests []string, uploadID string, ttl time.Duration) (*PresignedURL, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	req := newRequest()
	req.Multipart = &multipartXML{
		ObjectKey: objectKey,
		UploadID:  uploadID,
		TTL:       ttlSeconds(ttl),
		Digests:   partDigests,
	}

	body, err := c.postXML(ctx, req, []string{objectKey})
	if err != nil {
		return nil, err
	}
	return c.findKey(body, objectKey)
}

// CompleteMultipart signals that every part was uploaded; the broker issues
// the S3 complete call with the collected ETags.
func (c *Client) CompleteMultipart(ctx context.Context, objectKey, uploadID string, etags []string) error {
	return c.finishMultipart(ctx, objectKey, uploadID, etags, true)
}

// AbortMultipart signals a failed upload; the broker discards the multipart
// state on S3.
func (c *Client) AbortMultipart(ctx context.Context, objectKey, uploadID string) error {
	return c.finishMultipart(ctx, objectKey, uploadID, nil, false)
}

// Close puts the client into its terminal shutdown state and releases idle
// connections. Calls after Close fail with ErrClientShutdown.
func (c *Client) Close() error {
	if c.shutdown.CompareAndSwap(false, true) {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func (c *Client) validate() error {
	if c.shutdown.Load() {
		c.logger.Warn().Msg("Presigned urls provider client already shut down")
		return ErrClientShutdown
	}
	return nil
}

func (c *Client) finishMultipart(ctx context.Context, objectKey, uploadID string, etags []string, successful bool) error {
	if err := c.validate(); err != nil {
		return err
	}
	c.logger.Debugf("Multipart upload %s signaling %s started", uploadID, finishWord(successful))

	form := url.Values{}
	form.Set(paramObjectKey, objectKey)
	form.Set(paramObjectKeyBase64, base64.StdEncoding.EncodeToString([]byte(objectKey)))
	form.Set(paramFinishUpload, uploadID)
	form.Set(paramUploadSuccessful, strconv.FormatBool(successful))
	if successful {
		for _, etag := range etags {
			form.Add(paramETags, etag)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.decorate(req, []string{objectKey})

	if _, err := c.do(req); err != nil {
		c.logger.Warnf("Multipart upload %s signaling %s failed: %v", uploadID, finishWord(successful), err)
		return err
	}
	c.logger.Debugf("Multipart upload %s signaling %s finished", uploadID, finishWord(successful))
	return nil
}

func (c *Client) postXML(ctx context.Context, request *requestXML, objectKeys []string) ([]byte, error) {
	payload, err := serializeRequest(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	c.decorate(req, objectKeys)

	return c.do(req)
}

// decorate attaches identity and bookkeeping headers: user agent, auth token,
// correlation id, up to ArtifactKeysHeaderMax object keys for broker-side
// logging, and the node affinity cookie once the broker has handed one out.
func (c *Client) decorate(req *http.Request, objectKeys []string) {
	req.Header.Set("User-Agent", constants.UserAgent())
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("Accept-Charset", "utf-8")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(constants.CorrelationIDHeader, c.correlationID)

	max := constants.ArtifactKeysHeaderMax
	if len(objectKeys) < max {
		max = len(objectKeys)
	}
	for i := 0; i < max; i++ {
		req.Header.Add(constants.ArtifactKeysHeader, objectKeys[i])
	}

	c.mu.Lock()
	if c.nodeID != "" {
		req.AddCookie(&http.Cookie{Name: constants.NodeIDCookie, Value: c.nodeID})
	}
	c.mu.Unlock()
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpclient.WrapTransport(req.Method+" "+c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, httpclient.WrapTransport("read broker response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	c.captureNodeID(resp)
	return body, nil
}

// captureNodeID remembers the server node affinity cookie so follow-up
// requests land on the same broker node behind a proxy. A broker that never
// sets the cookie is logged once and otherwise tolerated.
func (c *Client) captureNodeID(resp *http.Response) {
	var found string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == constants.NodeIDCookie {
			found = cookie.Value
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if found != "" {
		c.nodeID = found
	} else if c.nodeID == "" && !c.nodeIDWarned {
		c.nodeIDWarned = true
		c.logger.Debugf("Url broker did not return a %s cookie; node affinity is not available", constants.NodeIDCookie)
	}
}

func (c *Client) findKey(body []byte, objectKey string) (*PresignedURL, error) {
	urls, err := parseListResponse(body)
	if err != nil {
		return nil, err
	}
	for i := range urls {
		if urls[i].ObjectKey == objectKey {
			return &urls[i], nil
		}
	}
	return nil, &ShapeError{Message: fmt.Sprintf("response does not contain required object %s", objectKey)}
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64(ttl / time.Second)
}

func finishWord(successful bool) string {
	if successful {
		return "success"
	}
	return "failure"
}
