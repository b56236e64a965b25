package s3http

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// retriableS3Codes are error codes from the S3 XML body worth another attempt.
var retriableS3Codes = map[string]bool{
	"RequestTimeout": true,
	"SlowDown":       true,
	"InternalError":  true,
}

// ResponseError is a non-2xx response from S3 (or from the broker fronting
// it), carrying the parsed XML error code when one was present.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Recoverable reports whether another attempt can possibly succeed.
// Server errors and throttling recover; other client errors do not.
func (e *ResponseError) Recoverable() bool {
	if e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429 {
		return true
	}
	return retriableS3Codes[e.Code]
}

// UploadInterrupted reports whether the server rejected the request because
// the upload was cancelled on the broker side.
func (e *ResponseError) UploadInterrupted() bool {
	return strings.Contains(strings.ToLower(e.Message), "upload interrupted")
}

// ConsistencyError means the locally computed digest did not match the ETag
// S3 returned. The corruption may be transient, so the attempt is retried.
type ConsistencyError struct {
	Digest string
	ETag   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency check failed: calculated digest [%s] is different from S3 etag [%s]", e.Digest, e.ETag)
}

func (e *ConsistencyError) Recoverable() bool {
	return true
}

// MissingETagError means a 2xx response arrived without an ETag header.
type MissingETagError struct{}

func (e *MissingETagError) Error() string {
	return "response does not contain an etag"
}

func (e *MissingETagError) Recoverable() bool {
	return true
}

// xmlError is the standard S3 error body.
type xmlError struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// parseErrorBody builds a ResponseError from a non-2xx response body.
// A body that is not the S3 XML error shape is kept verbatim as the message.
func parseErrorBody(statusCode int, body []byte) *ResponseError {
	var parsed xmlError
	if err := xml.Unmarshal(body, &parsed); err == nil && parsed.Code != "" {
		return &ResponseError{StatusCode: statusCode, Code: parsed.Code, Message: parsed.Message}
	}
	return &ResponseError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}
