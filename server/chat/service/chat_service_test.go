package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat_server/server/chat/domain"
)

type chatFixture struct {
	store   *fakeMessageStore
	objects *fakeObjects
	search  *SearchStore
	hub     *Hub
	runner  *JobRunner
	svc     *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := newFakeMessageStore()
	members := &fakeMembership{rooms: map[string][]string{
		"u1": {"r1"},
		"u2": {"r1"},
	}}
	objects := newFakeObjects()
	search := newTestSearchStore(t)
	hub := NewHub(nil)
	runner := NewJobRunner(1, 4)
	enrichment := NewEnrichmentService(store, objects, search, hub, &fakeTranscriber{text: "spoken words"}, &fakeExtractor{text: "extracted words from the document"}, nil, runner)
	svc := NewChatService(store, members, objects, search, hub, enrichment, nil, runner)
	return &chatFixture{store: store, objects: objects, search: search, hub: hub, runner: runner, svc: svc}
}

func TestCreateTextMessageIndexesAndBroadcasts(t *testing.T) {
	f := newChatFixture(t)
	conn := &fakeConn{}
	f.hub.Subscribe("r1", conn, "u2")

	msg, err := f.svc.CreateTextMessage(context.Background(), "r1", "u1", "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, domain.MessageTypeText, msg.MessageType)
	assert.Equal(t, domain.EnrichmentNone, msg.Enrichment)

	messages, _ := f.search.Counts()
	assert.Equal(t, 1, messages, "text is indexed before the call returns")

	writes := conn.received()
	require.Len(t, writes, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(writes[0], &env))
	assert.Equal(t, EnvelopeNewContent, env.Type)
}

func TestCreateTextMessageRequiresMembership(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.CreateTextMessage(context.Background(), "r1", "stranger", "hi")
	assert.ErrorIs(t, err, ErrNotRoomMember)
}

func TestCreateVoiceAttachment(t *testing.T) {
	f := newChatFixture(t)

	msg, err := f.svc.CreateAttachment(context.Background(), "r1", "u1", domain.MessageTypeVoice, "note.webm", "audio/webm", []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, domain.EnrichmentPending, msg.Enrichment)
	assert.Empty(t, msg.Content, "voice messages carry no text body")
	assert.Contains(t, msg.FileURL, "/api/files/voice/")

	f.runner.Stop()

	updated, err := f.store.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "spoken words", updated.Transcription)
	assert.Equal(t, domain.EnrichmentIndexed, updated.Enrichment)
}

func TestCreateDocumentAttachment(t *testing.T) {
	f := newChatFixture(t)

	msg, err := f.svc.CreateAttachment(context.Background(), "r1", "u1", domain.MessageTypeDocument, "report.pdf", "application/pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, domain.EnrichmentPending, msg.Enrichment)
	assert.Equal(t, "report.pdf", msg.Content)

	f.runner.Stop()

	updated, err := f.store.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "extracted words from the document", updated.Transcription)
	assert.Equal(t, domain.EnrichmentIndexed, updated.Enrichment)
}

func TestCreateImageAttachmentSchedulesThumbnail(t *testing.T) {
	f := newChatFixture(t)

	msg, err := f.svc.CreateAttachment(context.Background(), "r1", "u1", domain.MessageTypeImage, "photo.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, domain.EnrichmentNone, msg.Enrichment)

	f.runner.Stop()

	require.Len(t, f.objects.thumbed, 1)
	assert.Contains(t, f.objects.thumbed[0], "images/")
}

func TestCreateVideoAttachmentNoEnrichment(t *testing.T) {
	f := newChatFixture(t)

	msg, err := f.svc.CreateAttachment(context.Background(), "r1", "u1", domain.MessageTypeVideo, "clip.mp4", "video/mp4", []byte("mp4"))
	require.NoError(t, err)
	assert.Equal(t, domain.EnrichmentNone, msg.Enrichment)
	assert.Equal(t, "clip.mp4", msg.Content)

	f.runner.Stop()

	updated, err := f.store.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Transcription)
}

func TestDeleteMessageForEveryone(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg, err := f.svc.CreateTextMessage(ctx, "r1", "u1", "delete me")
	require.NoError(t, err)

	conn := &fakeConn{}
	f.hub.Subscribe("r1", conn, "u2")

	require.NoError(t, f.svc.DeleteMessage(ctx, "r1", msg.ID, "u1", "everyone"))

	updated, err := f.store.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsDeleted)
	assert.Empty(t, updated.Content)

	writes := conn.received()
	require.Len(t, writes, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(writes[0], &env))
	assert.Equal(t, EnvelopeContentDeleted, env.Type)
}

func TestDeleteMessageForEveryoneRequiresSender(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg, err := f.svc.CreateTextMessage(ctx, "r1", "u1", "not yours")
	require.NoError(t, err)

	err = f.svc.DeleteMessage(ctx, "r1", msg.ID, "u2", "everyone")
	assert.ErrorIs(t, err, ErrNotSender)
}

func TestDeleteMessageForMeHidesOnlyForRequester(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg, err := f.svc.CreateTextMessage(ctx, "r1", "u1", "hide me")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteMessage(ctx, "r1", msg.ID, "u2", "me"))

	forU2, err := f.svc.ListRoomMessages(ctx, "r1", "u2", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, forU2)

	forU1, err := f.svc.ListRoomMessages(ctx, "r1", "u1", 50, 0)
	require.NoError(t, err)
	require.Len(t, forU1, 1)
	assert.Equal(t, msg.ID, forU1[0].ID)
}

func TestDeleteMessageWrongRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	msg, err := f.svc.CreateTextMessage(ctx, "r1", "u1", "somewhere else")
	require.NoError(t, err)

	// u1 is not a member of r2, and the message lives in r1 anyway
	err = f.svc.DeleteMessage(ctx, "r2", msg.ID, "u1", "everyone")
	assert.Error(t, err)
}
