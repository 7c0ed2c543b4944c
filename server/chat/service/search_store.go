package service

import (
	"context"
	"path/filepath"
	"strings"

	commonlog "voicechat_server/server/common/log"
)

const sentenceOverFetchFactor = 3

type SentenceHit struct {
	MessageID string `json:"message_id"`
	Sentence  string `json:"sentence"`
}

// SearchStore owns the message- and sentence-granularity vector indices
// and the embedder. Constructed once at startup (load-or-create) and
// handed to the ingestion and query services; index state is never
// reached through package globals.
type SearchStore struct {
	embedder  Embedder
	messages  *VectorIndex
	sentences *VectorIndex
}

func NewSearchStore(indexDir string, embedder Embedder) (*SearchStore, error) {
	dim := embedder.Dimension()
	messages, err := NewVectorIndex(dim,
		filepath.Join(indexDir, "messages.bin"),
		filepath.Join(indexDir, "message_id_map.json"),
		true)
	if err != nil {
		return nil, err
	}
	sentences, err := NewVectorIndex(dim,
		filepath.Join(indexDir, "sentences.bin"),
		filepath.Join(indexDir, "sentence_map.json"),
		false)
	if err != nil {
		return nil, err
	}
	commonlog.Infof("event=search_store action=load status=ok messages=%d sentences=%d dir=%s",
		messages.Len(), sentences.Len(), indexDir)
	return &SearchStore{embedder: embedder, messages: messages, sentences: sentences}, nil
}

// IndexMessage embeds text and appends it to the message-granularity
// index. Blank text is skipped silently; embedding failures are
// returned for the caller to log and absorb.
func (s *SearchStore) IndexMessage(ctx context.Context, messageID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return s.messages.Add([]IndexEntry{{MessageID: messageID}}, [][]float32{vec})
}

// IndexSentences embeds the batch in one call and appends one entry per
// sentence, all sharing the same message id.
func (s *SearchStore) IndexSentences(ctx context.Context, messageID string, sentences []string) error {
	if len(sentences) == 0 {
		return nil
	}
	vectors, err := s.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return err
	}
	entries := make([]IndexEntry, len(sentences))
	for i, sentence := range sentences {
		entries[i] = IndexEntry{MessageID: messageID, Sentence: sentence}
	}
	return s.sentences.Add(entries, vectors)
}

// SearchMessages returns message ids nearest to the query, best first.
func (s *SearchStore) SearchMessages(ctx context.Context, query string, k int) ([]string, error) {
	if s.messages.Len() == 0 {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.messages.Search(vec, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.Entry.MessageID)
	}
	return ids, nil
}

// SearchSentences over-fetches, then keeps only the nearest sentence per
// message until k distinct messages are collected. A document with many
// matching sentences surfaces once.
func (s *SearchStore) SearchSentences(ctx context.Context, query string, k int) ([]SentenceHit, error) {
	if s.sentences.Len() == 0 {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.sentences.Search(vec, k*sentenceOverFetchFactor)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	results := make([]SentenceHit, 0, k)
	for _, hit := range hits {
		if _, ok := seen[hit.Entry.MessageID]; ok {
			continue
		}
		seen[hit.Entry.MessageID] = struct{}{}
		results = append(results, SentenceHit{MessageID: hit.Entry.MessageID, Sentence: hit.Entry.Sentence})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func (s *SearchStore) Counts() (messages, sentences int) {
	return s.messages.Len(), s.sentences.Len()
}

// Close flushes nothing extra: every Add already persisted synchronously.
func (s *SearchStore) Close() error {
	messages, sentences := s.Counts()
	commonlog.Infof("event=search_store action=close messages=%d sentences=%d", messages, sentences)
	return nil
}
