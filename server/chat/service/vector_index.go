package service

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// indexMagic guards against loading a sidecar/index pair written by an
// incompatible version or truncated mid-write.
const indexMagic = uint32(0x56434831) // "VCH1"

// IndexEntry maps one vector position back to its message. Sentence
// granularity also carries the indexed sentence text.
type IndexEntry struct {
	MessageID string `json:"message_id"`
	Sentence  string `json:"sentence,omitempty"`
}

type indexHit struct {
	Entry    IndexEntry
	Distance float32
}

// VectorIndex is an append-only flat L2 index over fixed-dimension
// vectors, persisted to disk after every mutation. One mutex serializes
// Add and Search: correctness over throughput, acceptable because both
// indexing and query volume are low for this workload.
//
// Entries are never removed; deleted messages are filtered at query
// time against the record store.
type VectorIndex struct {
	mu        sync.Mutex
	dim       int
	vectors   []float32 // packed row-major, len == dim * len(entries)
	entries   []IndexEntry
	indexPath string
	mapPath   string
	plainIDs  bool // sidecar is a bare id array (message granularity)
}

// NewVectorIndex loads an existing index pair from disk or starts empty.
// plainIDs selects the message-granularity sidecar layout: a JSON array
// of message ids instead of {message_id, sentence} objects.
func NewVectorIndex(dim int, indexPath, mapPath string, plainIDs bool) (*VectorIndex, error) {
	idx := &VectorIndex{dim: dim, indexPath: indexPath, mapPath: mapPath, plainIDs: plainIDs}
	if err := idx.load(); err != nil {
		return nil, fmt.Errorf("load vector index %s: %w", indexPath, err)
	}
	return idx, nil
}

func (x *VectorIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Add appends entries with their vectors and persists both files before
// returning. The vector slice and entry slice must be the same length;
// a persistence failure is returned but the in-memory append is kept,
// so durability on that write is best effort.
func (x *VectorIndex) Add(entries []IndexEntry, vectors [][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) != len(vectors) {
		return fmt.Errorf("vector index add: %d entries but %d vectors", len(entries), len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != x.dim {
			return fmt.Errorf("vector index add: dim %d, want %d", len(vec), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range entries {
		x.vectors = append(x.vectors, vectors[i]...)
		x.entries = append(x.entries, entries[i])
	}
	return x.persist()
}

// Search scans all stored vectors and returns up to k hits ordered by
// ascending L2 distance. k is clamped to the vector count; an empty
// index yields an empty result, never an error.
func (x *VectorIndex) Search(query []float32, k int) ([]indexHit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("vector index search: dim %d, want %d", len(query), x.dim)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	n := len(x.entries)
	if n == 0 || k <= 0 {
		return []indexHit{}, nil
	}
	if k > n {
		k = n
	}

	hits := make([]indexHit, 0, n)
	for i := 0; i < n; i++ {
		row := x.vectors[i*x.dim : (i+1)*x.dim]
		var dist float64
		for j, q := range query {
			d := float64(row[j]) - float64(q)
			dist += d * d
		}
		hits = append(hits, indexHit{Entry: x.entries[i], Distance: float32(math.Sqrt(dist))})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	return hits[:k], nil
}

// persist rewrites both files in full. Atomic rename-on-write keeps a
// crash mid-write from corrupting the pair that was already on disk.
func (x *VectorIndex) persist() error {
	if err := os.MkdirAll(filepath.Dir(x.indexPath), 0o755); err != nil {
		return err
	}

	buf := make([]byte, 12+4*len(x.vectors))
	binary.LittleEndian.PutUint32(buf[0:4], indexMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(x.dim))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(x.entries)))
	for i, v := range x.vectors {
		binary.LittleEndian.PutUint32(buf[12+4*i:], math.Float32bits(v))
	}
	if err := writeFileAtomic(x.indexPath, buf); err != nil {
		return err
	}

	sidecar, err := x.marshalSidecar()
	if err != nil {
		return err
	}
	return writeFileAtomic(x.mapPath, sidecar)
}

func (x *VectorIndex) marshalSidecar() ([]byte, error) {
	if x.plainIDs {
		ids := make([]string, len(x.entries))
		for i, e := range x.entries {
			ids[i] = e.MessageID
		}
		return json.Marshal(ids)
	}
	return json.Marshal(x.entries)
}

func (x *VectorIndex) load() error {
	raw, err := os.ReadFile(x.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) < 12 {
		return errors.New("index file too short")
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != indexMagic {
		return errors.New("index file has unknown format")
	}
	dim := int(binary.LittleEndian.Uint32(raw[4:8]))
	count := int(binary.LittleEndian.Uint32(raw[8:12]))
	if dim != x.dim {
		return fmt.Errorf("index file dim %d, want %d", dim, x.dim)
	}
	if len(raw) != 12+4*dim*count {
		return fmt.Errorf("index file size mismatch for %d vectors", count)
	}

	vectors := make([]float32, dim*count)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[12+4*i:]))
	}

	sidecar, err := os.ReadFile(x.mapPath)
	if err != nil {
		return err
	}
	entries, err := x.unmarshalSidecar(sidecar)
	if err != nil {
		return err
	}
	if len(entries) != count {
		return fmt.Errorf("sidecar has %d entries, index has %d vectors", len(entries), count)
	}

	x.vectors = vectors
	x.entries = entries
	return nil
}

func (x *VectorIndex) unmarshalSidecar(raw []byte) ([]IndexEntry, error) {
	if x.plainIDs {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, err
		}
		entries := make([]IndexEntry, len(ids))
		for i, id := range ids {
			entries[i] = IndexEntry{MessageID: id}
		}
		return entries, nil
	}
	var entries []IndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
