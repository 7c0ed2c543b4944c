package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrExtraction marks unsupported or corrupt documents. The worker logs
// it and leaves the message without enriched text; no partial index
// state is produced.
var ErrExtraction = errors.New("extraction failed")

type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// TikaClient extracts document text through an Apache Tika server
// (PUT /tika, Accept: text/plain). Plain-text and unknown types are
// decoded locally without a round trip.
type TikaClient struct {
	endpoint string
	client   *http.Client
}

func NewTikaClient(endpoint string) *TikaClient {
	return &TikaClient{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (t *TikaClient) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if isPlainText(contentType) {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: not valid utf-8 text", ErrExtraction)
		}
		return string(data), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.endpoint+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: tika status %d", ErrExtraction, resp.StatusCode)
	}
	return string(raw), nil
}

// Unknown content types are treated as plain text, matching how unknown
// document uploads are handled end to end.
func isPlainText(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return true
	}
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	switch {
	case strings.Contains(ct, "pdf"),
		strings.Contains(ct, "msword"),
		strings.Contains(ct, "officedocument"),
		strings.Contains(ct, "powerpoint"),
		strings.Contains(ct, "presentation"):
		return false
	}
	return true
}
