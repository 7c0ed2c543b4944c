package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	commonlog "voicechat_server/server/common/log"
)

const defaultVectorDim = 384

// ErrEmbedding marks encode failures. Callers log and skip the index
// update for that call; message visibility is unaffected.
var ErrEmbedding = errors.New("embedding failed")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// HTTPEmbedder calls a text-embeddings-inference style endpoint
// (POST /embed {"inputs": [...]}) and unit-normalizes the output so
// L2 nearest-neighbor ranks like cosine similarity. The remote model
// loads on first use; warmUp runs once and off the request path.
type HTTPEmbedder struct {
	endpoint string
	dim      int
	client   *http.Client
	warm     sync.Once
}

func NewHTTPEmbedder(endpoint string, dim int) *HTTPEmbedder {
	if dim <= 0 {
		dim = defaultVectorDim
	}
	return &HTTPEmbedder{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		dim:      dim,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPEmbedder) Dimension() int { return e.dim }

// WarmUp triggers remote model loading without blocking the caller.
func (e *HTTPEmbedder) WarmUp() {
	e.warm.Do(func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := e.Embed(ctx, "warmup"); err != nil {
				commonlog.Warnf("event=embedding action=warmup status=failed error=%v", err)
				return
			}
			commonlog.Infof("event=embedding action=warmup status=ok endpoint=%s", e.endpoint)
		}()
	})
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbedding, len(vectors))
	}
	return vectors[0], nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrEmbedding, resp.StatusCode)
	}

	var vectors [][]float32
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbedding, len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != e.dim {
			return nil, fmt.Errorf("%w: vector %d has dim %d, want %d", ErrEmbedding, i, len(vec), e.dim)
		}
		normalize(vec)
	}
	return vectors, nil
}

// HashEmbedder derives deterministic unit vectors from sha256 of the
// input. Stands in when no embedding endpoint is configured; related
// texts do not land near each other, but the pipeline stays exercisable.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultVectorDim
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, e.dim)
	for i := 0; i < e.dim; i++ {
		offset := (i * 4) % len(hash)
		chunk := binary.BigEndian.Uint32(hash[offset : offset+4])
		vec[i] = float32(chunk%1000) / 1000.0
	}
	normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
