package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat_server/server/chat/domain"
)

func seedMessage(t *testing.T, store *fakeMessageStore, msg domain.Message) domain.Message {
	t.Helper()
	created, err := store.Create(context.Background(), msg)
	require.NoError(t, err)
	return created
}

func newSearchFixture(t *testing.T) (*SearchService, *fakeMessageStore, *SearchStore) {
	t.Helper()
	store := newFakeMessageStore()
	members := &fakeMembership{rooms: map[string][]string{"u1": {"r1", "r2"}}}
	search := newTestSearchStore(t)
	return NewSearchService(store, members, search), store, search
}

func TestSearchBlankQuery(t *testing.T) {
	svc, _, _ := newSearchFixture(t)

	resp, err := svc.Search(context.Background(), "u1", "   ", "", SearchLimits{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestSearchNoRoomsNoResults(t *testing.T) {
	store := newFakeMessageStore()
	members := &fakeMembership{rooms: map[string][]string{}}
	svc := NewSearchService(store, members, newTestSearchStore(t))

	seedMessage(t, store, domain.Message{ID: "m1", RoomID: "r1", Content: "hello world", MessageType: domain.MessageTypeText})

	resp, err := svc.Search(context.Background(), "stranger", "hello", "", SearchLimits{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchKeywordStageScoresAndMatchTypes(t *testing.T) {
	svc, store, _ := newSearchFixture(t)
	ctx := context.Background()

	seedMessage(t, store, domain.Message{ID: "m-text", RoomID: "r1", Content: "hello world everyone", MessageType: domain.MessageTypeText})
	seedMessage(t, store, domain.Message{ID: "m-voice", RoomID: "r1", MessageType: domain.MessageTypeVoice, Transcription: "well hello world from the call", Enrichment: domain.EnrichmentIndexed})
	seedMessage(t, store, domain.Message{ID: "m-doc", RoomID: "r1", Content: "notes.pdf", MessageType: domain.MessageTypeDocument, Transcription: "meeting notes say hello world twice", Enrichment: domain.EnrichmentIndexed})

	resp, err := svc.Search(ctx, "u1", "hello world", "", SearchLimits{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	byID := map[string]domain.SearchResult{}
	for _, r := range resp.Results {
		assert.Equal(t, 1.0, r.Score)
		byID[r.Message.ID] = r
	}
	assert.Equal(t, "text", byID["m-text"].MatchType)
	assert.Equal(t, "transcription", byID["m-voice"].MatchType)
	assert.Equal(t, "document", byID["m-doc"].MatchType)
	assert.Equal(t, 3, resp.Total)
}

func TestSearchSemanticStagesScoreAndDedup(t *testing.T) {
	svc, store, search := newSearchFixture(t)
	ctx := context.Background()

	// keyword hit, also present in the message index
	seedMessage(t, store, domain.Message{ID: "m-kw", RoomID: "r1", Content: "project alpha status", MessageType: domain.MessageTypeText})
	require.NoError(t, search.IndexMessage(ctx, "m-kw", "project alpha status"))

	// semantic-only hit: indexed under different stored content
	seedMessage(t, store, domain.Message{ID: "m-sem", RoomID: "r1", Content: "unrelated body", MessageType: domain.MessageTypeText})
	require.NoError(t, search.IndexMessage(ctx, "m-sem", "project alpha status"))

	// sentence-granularity hit from a document
	seedMessage(t, store, domain.Message{ID: "m-doc", RoomID: "r1", Content: "plan.docx", MessageType: domain.MessageTypeDocument, Enrichment: domain.EnrichmentIndexed})
	require.NoError(t, search.IndexSentences(ctx, "m-doc", []string{"project alpha status was reviewed"}))

	resp, err := svc.Search(ctx, "u1", "project alpha status", "", SearchLimits{})
	require.NoError(t, err)

	byID := map[string]domain.SearchResult{}
	for _, r := range resp.Results {
		_, dup := byID[r.Message.ID]
		require.False(t, dup, "message %s emitted twice", r.Message.ID)
		byID[r.Message.ID] = r
	}

	require.Contains(t, byID, "m-kw")
	require.Contains(t, byID, "m-sem")
	require.Contains(t, byID, "m-doc")

	assert.Equal(t, 1.0, byID["m-kw"].Score, "keyword stage wins over semantic for the same message")
	assert.Equal(t, "text", byID["m-kw"].MatchType)
	assert.Equal(t, 0.8, byID["m-sem"].Score)
	assert.Equal(t, "semantic", byID["m-sem"].MatchType)
	assert.Equal(t, 0.75, byID["m-doc"].Score)
	assert.Equal(t, "document", byID["m-doc"].MatchType)
	assert.Equal(t, "project alpha status was reviewed", byID["m-doc"].Snippet)
}

func TestSearchFiltersDeletedAndForeignRooms(t *testing.T) {
	svc, store, search := newSearchFixture(t)
	ctx := context.Background()

	seedMessage(t, store, domain.Message{ID: "m-del", RoomID: "r1", Content: "secret launch date", MessageType: domain.MessageTypeText, IsDeleted: true})
	require.NoError(t, search.IndexMessage(ctx, "m-del", "secret launch date"))

	seedMessage(t, store, domain.Message{ID: "m-foreign", RoomID: "r99", Content: "secret launch date", MessageType: domain.MessageTypeText})
	require.NoError(t, search.IndexMessage(ctx, "m-foreign", "secret launch date"))

	resp, err := svc.Search(ctx, "u1", "secret launch date", "", SearchLimits{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchRoomFilter(t *testing.T) {
	svc, store, _ := newSearchFixture(t)
	ctx := context.Background()

	seedMessage(t, store, domain.Message{ID: "m-r1", RoomID: "r1", Content: "standup summary", MessageType: domain.MessageTypeText})
	seedMessage(t, store, domain.Message{ID: "m-r2", RoomID: "r2", Content: "standup summary", MessageType: domain.MessageTypeText})

	resp, err := svc.Search(ctx, "u1", "standup", "r2", SearchLimits{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m-r2", resp.Results[0].Message.ID)
}

func TestExtractSnippetCentersOnMatch(t *testing.T) {
	long := strings.Repeat("x", 200) + " the important phrase sits here " + strings.Repeat("y", 200)

	snippet := ExtractSnippet(long, "important phrase")

	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.Contains(t, snippet, "important phrase")
	assert.Less(t, len(snippet), len(long))
}

func TestExtractSnippetFallbackWithoutMatch(t *testing.T) {
	long := strings.Repeat("z", 500)

	snippet := ExtractSnippet(long, "absent")

	assert.Equal(t, long[:160], snippet)
}

func TestExtractSnippetMultiByteFallback(t *testing.T) {
	long := strings.Repeat("분", 300)

	snippet := ExtractSnippet(long, "absent")

	assert.True(t, utf8.ValidString(snippet))
	assert.Equal(t, 160, utf8.RuneCountInString(snippet))
}

func TestExtractSnippetMultiByteWindow(t *testing.T) {
	long := strings.Repeat("가", 200) + "회의록" + strings.Repeat("나", 200)

	snippet := ExtractSnippet(long, "회의록")

	assert.True(t, utf8.ValidString(snippet))
	assert.Contains(t, snippet, "회의록")
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestExtractSnippetShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short text", ExtractSnippet("short text", "absent"))
	assert.Equal(t, "short text", ExtractSnippet("short text", "text"))
	assert.Equal(t, "", ExtractSnippet("", "anything"))
}
