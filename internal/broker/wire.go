package broker

import (
	"encoding/xml"
	"fmt"
	"sort"
)

// PresignedURL is one object's upload descriptor as issued by the broker.
type PresignedURL struct {
	ObjectKey string
	// UploadID is non-empty for multipart descriptors.
	UploadID  string
	Multipart bool
	// Parts are ordered by ascending part number. A regular descriptor has
	// exactly one part with number 1.
	Parts []Part
}

// Part is a single presigned PUT target.
type Part struct {
	Number int
	URL    string
}

// Wire shapes, protocol version 2.

type requestXML struct {
	XMLName    xml.Name       `xml:"request"`
	Version    string         `xml:"version,attr"`
	ObjectKeys *objectKeysXML `xml:"objectKeys,omitempty"`
	ObjectKey  *objectKeyXML  `xml:"objectKey,omitempty"`
	Multipart  *multipartXML  `xml:"multipart,omitempty"`
}

type objectKeysXML struct {
	Keys []keyXML `xml:"key"`
}

type keyXML struct {
	Digest string `xml:"digest,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type objectKeyXML struct {
	Digest string `xml:"digest,attr,omitempty"`
	TTL    int64  `xml:"ttl,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type multipartXML struct {
	ObjectKey string   `xml:"objectKey,attr"`
	UploadID  string   `xml:"uploadId,attr,omitempty"`
	TTL       int64    `xml:"ttl,attr,omitempty"`
	Digests   []string `xml:"digest"`
}

type listResponseXML struct {
	XMLName xml.Name          `xml:"presignedUrlListResponse"`
	URLs    []presignedURLXML `xml:"presignedUrl"`
}

type presignedURLXML struct {
	ObjectKey string    `xml:"objectKey,attr"`
	UploadID  string    `xml:"uploadId,attr"`
	Multipart bool      `xml:"multipart,attr"`
	Parts     []partXML `xml:"url"`
}

type partXML struct {
	PartNumber int    `xml:"partNumber,attr"`
	URL        string `xml:",chardata"`
}

const wireVersion = "2"

func newRequest() *requestXML {
	return &requestXML{Version: wireVersion}
}

func serializeRequest(req *requestXML) ([]byte, error) {
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// parseListResponse decodes the broker response into domain descriptors.
func parseListResponse(body []byte) ([]PresignedURL, error) {
	var resp listResponseXML
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, &ShapeError{Message: fmt.Sprintf("malformed presigned url response: %v", err)}
	}

	urls := make([]PresignedURL, 0, len(resp.URLs))
	for _, u := range resp.URLs {
		if u.ObjectKey == "" {
			return nil, &ShapeError{Message: "presigned url response entry is missing an object key"}
		}
		parts := make([]Part, 0, len(u.Parts))
		for _, p := range u.Parts {
			n := p.PartNumber
			if n == 0 {
				n = 1
			}
			parts = append(parts, Part{Number: n, URL: p.URL})
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
		urls = append(urls, PresignedURL{
			ObjectKey: u.ObjectKey,
			UploadID:  u.UploadID,
			Multipart: u.Multipart,
			Parts:     parts,
		})
	}
	return urls, nil
}
