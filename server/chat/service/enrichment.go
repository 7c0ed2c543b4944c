package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"voicechat_server/server/chat/domain"
	commonlog "voicechat_server/server/common/log"
)

const enrichedTextCap = 4000

// EnrichmentService runs the background derivation of searchable text
// from voice and document messages. Each message gets exactly one
// attempt; failures are terminal and visible only as missing enrichment
// data. Workers outlive the request that scheduled them and are never
// cancelled.
type EnrichmentService struct {
	store       MessageStore
	objects     ObjectStore
	search      *SearchStore
	hub         *Hub
	transcriber Transcriber
	extractor   Extractor
	publisher   *EventPublisher
	runner      *JobRunner
}

func NewEnrichmentService(
	store MessageStore,
	objects ObjectStore,
	search *SearchStore,
	hub *Hub,
	transcriber Transcriber,
	extractor Extractor,
	publisher *EventPublisher,
	runner *JobRunner,
) *EnrichmentService {
	return &EnrichmentService{
		store:       store,
		objects:     objects,
		search:      search,
		hub:         hub,
		transcriber: transcriber,
		extractor:   extractor,
		publisher:   publisher,
		runner:      runner,
	}
}

func (s *EnrichmentService) EnqueueVoice(msg domain.Message) {
	s.runner.Submit(func() { s.processVoice(msg) })
}

func (s *EnrichmentService) EnqueueDocument(msg domain.Message, contentType string) {
	s.runner.Submit(func() { s.processDocument(msg, contentType) })
}

// processVoice transcribes the audio object and indexes the result at
// message granularity. Empty or failed recognition is recorded as a
// sentinel string with status still Indexed: the outcome is user
// visible as text, not as an error.
func (s *EnrichmentService) processVoice(msg domain.Message) {
	ctx := context.Background()

	text := TranscriptFailed
	audio, err := s.objects.Fetch(ctx, msg.ObjectKey)
	if err != nil {
		commonlog.Errorf("event=enrichment action=fetch_audio status=failed message_id=%s key=%s error=%v", msg.ID, msg.ObjectKey, err)
	} else {
		transcript, err := s.transcriber.Transcribe(ctx, msg.ObjectKey, audio)
		switch {
		case err != nil:
			commonlog.Errorf("event=enrichment action=transcribe status=failed message_id=%s error=%v", msg.ID, err)
		case strings.TrimSpace(transcript) == "":
			text = TranscriptNoSpeech
		default:
			text = transcript
		}
	}

	if err := s.store.UpdateEnrichment(ctx, msg.ID, text, domain.EnrichmentIndexed); err != nil {
		commonlog.Errorf("event=enrichment action=update_record status=failed message_id=%s error=%v", msg.ID, err)
		return
	}

	if err := s.search.IndexMessage(ctx, msg.ID, text); err != nil {
		commonlog.Errorf("event=enrichment action=index status=failed message_id=%s error=%v", msg.ID, err)
	}

	s.broadcastEnriched(ctx, msg, text)
	commonlog.Infof("event=enrichment action=transcribe status=ok message_id=%s chars=%d", msg.ID, len(text))
}

// processDocument extracts document text, indexes sentence fragments,
// and stores a truncated copy for keyword search. Empty extraction
// leaves the message unenriched; extraction errors mark it Failed.
// Neither produces partial index state.
func (s *EnrichmentService) processDocument(msg domain.Message, contentType string) {
	ctx := context.Background()

	data, err := s.objects.Fetch(ctx, msg.ObjectKey)
	if err != nil {
		commonlog.Errorf("event=enrichment action=fetch_document status=failed message_id=%s key=%s error=%v", msg.ID, msg.ObjectKey, err)
		s.markFailed(ctx, msg.ID)
		return
	}

	text, err := s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		commonlog.Errorf("event=enrichment action=extract status=failed message_id=%s error=%v", msg.ID, err)
		s.markFailed(ctx, msg.ID)
		return
	}
	if strings.TrimSpace(text) == "" {
		commonlog.Warnf("event=enrichment action=extract status=empty message_id=%s key=%s", msg.ID, msg.ObjectKey)
		if err := s.store.UpdateEnrichment(ctx, msg.ID, "", domain.EnrichmentNone); err != nil {
			commonlog.Errorf("event=enrichment action=update_record status=failed message_id=%s error=%v", msg.ID, err)
		}
		return
	}

	sentences := SplitSentences(text, minSentenceLen)
	if err := s.search.IndexSentences(ctx, msg.ID, sentences); err != nil {
		commonlog.Errorf("event=enrichment action=index_sentences status=failed message_id=%s error=%v", msg.ID, err)
	}

	// cap counts characters, not bytes, so multi-byte text stays valid
	stored := text
	if utf8.RuneCountInString(stored) > enrichedTextCap {
		stored = string([]rune(stored)[:enrichedTextCap])
	}
	if err := s.store.UpdateEnrichment(ctx, msg.ID, stored, domain.EnrichmentIndexed); err != nil {
		commonlog.Errorf("event=enrichment action=update_record status=failed message_id=%s error=%v", msg.ID, err)
		return
	}

	s.broadcastEnriched(ctx, msg, stored)
	commonlog.Infof("event=enrichment action=extract status=ok message_id=%s sentences=%d chars=%d", msg.ID, len(sentences), len(text))
}

func (s *EnrichmentService) markFailed(ctx context.Context, messageID string) {
	if err := s.store.UpdateEnrichment(ctx, messageID, "", domain.EnrichmentFailed); err != nil {
		commonlog.Errorf("event=enrichment action=mark_failed status=failed message_id=%s error=%v", messageID, err)
	}
}

func (s *EnrichmentService) broadcastEnriched(ctx context.Context, msg domain.Message, text string) {
	updated, err := s.store.GetByID(ctx, msg.ID)
	if err != nil {
		// fall back to the stale copy so subscribers still learn about the text
		updated = msg
		updated.Transcription = text
		updated.Enrichment = domain.EnrichmentIndexed
	}
	s.hub.Publish(msg.RoomID, Envelope{Type: EnvelopeTranscriptionUpdate, Payload: updated})
	s.publisher.Publish(ctx, EventMessageEnriched, updated)
}
