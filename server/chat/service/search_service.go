package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"voicechat_server/server/chat/domain"
	commonlog "voicechat_server/server/common/log"
)

const (
	snippetWindow       = 80
	snippetFallbackSize = 160

	scoreKeyword          = 1.0
	scoreSemanticMessage  = 0.8
	scoreSemanticSentence = 0.75
)

type SearchLimits struct {
	Keyword   int
	Semantic  int
	Sentences int
}

func DefaultSearchLimits() SearchLimits {
	return SearchLimits{Keyword: 30, Semantic: 20, Sentences: 10}
}

func (l SearchLimits) normalized() SearchLimits {
	d := DefaultSearchLimits()
	if l.Keyword <= 0 {
		l.Keyword = d.Keyword
	}
	if l.Semantic <= 0 {
		l.Semantic = d.Semantic
	}
	if l.Sentences <= 0 {
		l.Sentences = d.Sentences
	}
	return l
}

// SearchService answers hybrid queries: keyword lookup against the
// record store, then semantic lookups against both vector indices,
// fused in fixed priority order. It only reads; the ingestion pipeline
// is never touched at query time.
type SearchService struct {
	store   MessageStore
	members MembershipStore
	search  *SearchStore
}

func NewSearchService(store MessageStore, members MembershipStore, search *SearchStore) *SearchService {
	return &SearchService{store: store, members: members, search: search}
}

// Search runs the three stages and fuses them first-stage-wins: a
// message already emitted by an earlier stage is skipped later, and the
// per-stage scores are fixed display values, not a ranking signal.
func (s *SearchService) Search(ctx context.Context, userID, q, roomFilter string, limits SearchLimits) (domain.SearchResponse, error) {
	resp := domain.SearchResponse{Query: q, Results: []domain.SearchResult{}}
	if strings.TrimSpace(q) == "" {
		return resp, nil
	}

	roomIDs, err := s.members.RoomIDsForUser(ctx, userID)
	if err != nil {
		return resp, err
	}
	if len(roomIDs) == 0 {
		return resp, nil
	}
	limits = limits.normalized()

	seen := map[string]struct{}{}

	// stage 1: keyword
	keywordHits, err := s.store.SearchKeyword(ctx, roomIDs, q, roomFilter, limits.Keyword)
	if err != nil {
		return resp, err
	}
	for _, msg := range keywordHits {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		seen[msg.ID] = struct{}{}
		matchType, searchable := keywordMatchType(msg, q)
		resp.Results = append(resp.Results, domain.SearchResult{
			Message:   msg,
			Snippet:   ExtractSnippet(searchable, q),
			MatchType: matchType,
			Score:     scoreKeyword,
		})
	}

	// stage 2: semantic, message granularity
	semanticIDs, err := s.search.SearchMessages(ctx, q, limits.Semantic)
	if err != nil {
		commonlog.Errorf("event=search action=semantic_messages status=failed error=%v", err)
	}
	for _, msg := range s.fetchVisible(ctx, semanticIDs, roomIDs, roomFilter) {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		seen[msg.ID] = struct{}{}
		resp.Results = append(resp.Results, domain.SearchResult{
			Message:   msg,
			Snippet:   ExtractSnippet(msg.SearchableText(), q),
			MatchType: "semantic",
			Score:     scoreSemanticMessage,
		})
	}

	// stage 3: semantic, sentence granularity
	sentenceHits, err := s.search.SearchSentences(ctx, q, limits.Sentences)
	if err != nil {
		commonlog.Errorf("event=search action=semantic_sentences status=failed error=%v", err)
	}
	sentenceByID := map[string]string{}
	sentenceIDs := make([]string, 0, len(sentenceHits))
	for _, hit := range sentenceHits {
		sentenceIDs = append(sentenceIDs, hit.MessageID)
		sentenceByID[hit.MessageID] = hit.Sentence
	}
	for _, msg := range s.fetchVisible(ctx, sentenceIDs, roomIDs, roomFilter) {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		seen[msg.ID] = struct{}{}
		resp.Results = append(resp.Results, domain.SearchResult{
			Message:   msg,
			Snippet:   ExtractSnippet(sentenceByID[msg.ID], q),
			MatchType: "document",
			Score:     scoreSemanticSentence,
		})
	}

	resp.Total = len(resp.Results)
	return resp, nil
}

// fetchVisible resolves index hits against the record store and drops
// anything outside the requester's scope or soft-deleted, preserving
// the index's nearest-first order.
func (s *SearchService) fetchVisible(ctx context.Context, ids, roomIDs []string, roomFilter string) []domain.Message {
	if len(ids) == 0 {
		return nil
	}
	msgs, err := s.store.GetByIDs(ctx, ids)
	if err != nil {
		commonlog.Errorf("event=search action=fetch_messages status=failed error=%v", err)
		return nil
	}
	byID := make(map[string]domain.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	visible := map[string]struct{}{}
	for _, roomID := range roomIDs {
		visible[roomID] = struct{}{}
	}

	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, ok := byID[id]
		if !ok || msg.IsDeleted {
			continue
		}
		if _, ok := visible[msg.RoomID]; !ok {
			continue
		}
		if roomFilter != "" && msg.RoomID != roomFilter {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// keywordMatchType reports where the keyword hit landed: "transcription"
// for voice, "document" for documents when the query is found in the
// enriched text, plain "text" otherwise.
func keywordMatchType(msg domain.Message, q string) (matchType, searchable string) {
	lowerQ := strings.ToLower(q)
	if msg.Transcription != "" && strings.Contains(strings.ToLower(msg.Transcription), lowerQ) {
		if msg.MessageType == domain.MessageTypeDocument {
			return "document", msg.Transcription
		}
		return "transcription", msg.Transcription
	}
	return "text", msg.Content
}

// ExtractSnippet returns a window of roughly snippetWindow characters
// centered on the first case-insensitive occurrence of the query, with
// ellipsis markers where the window truncates. A pure semantic match
// with no literal occurrence yields the first snippetFallbackSize
// characters unmodified. All offsets are rune positions so multi-byte
// text is never cut mid-character.
func ExtractSnippet(text, query string) string {
	if text == "" {
		return ""
	}
	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)
	idx := strings.Index(lowerText, lowerQuery)

	runes := []rune(text)
	if idx == -1 {
		if len(runes) <= snippetFallbackSize {
			return text
		}
		return string(runes[:snippetFallbackSize])
	}

	matchStart := utf8.RuneCountInString(lowerText[:idx])
	matchLen := utf8.RuneCountInString(lowerQuery)

	start := matchStart - snippetWindow/2
	if start < 0 {
		start = 0
	}
	end := matchStart + matchLen + snippetWindow/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}
