package domain

import "time"

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
)

// EnrichmentStatus tracks the asynchronous derivation of searchable text
// from a non-text message. A message transitions Pending -> Indexed or
// Pending -> Failed exactly once; types with nothing to enrich stay None.
type EnrichmentStatus string

const (
	EnrichmentNone    EnrichmentStatus = "none"
	EnrichmentPending EnrichmentStatus = "pending"
	EnrichmentIndexed EnrichmentStatus = "indexed"
	EnrichmentFailed  EnrichmentStatus = "failed"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	About        string    `json:"about,omitempty"`
	IsOnline     bool      `json:"is_online"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomSummary struct {
	Room
	Members     []User   `json:"members,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
}

type Message struct {
	ID            string           `json:"id"`
	RoomID        string           `json:"room_id"`
	SenderID      string           `json:"sender_id"`
	Content       string           `json:"content,omitempty"`
	MessageType   MessageType      `json:"message_type"`
	ObjectKey     string           `json:"-"`
	FileURL       string           `json:"file_url,omitempty"`
	Transcription string           `json:"transcription,omitempty"`
	Enrichment    EnrichmentStatus `json:"enrichment_status"`
	IsDeleted     bool             `json:"is_deleted"`
	CreatedAt     time.Time        `json:"created_at"`
}

// SearchableText is the text a message contributes to keyword search:
// the enriched transcription/extraction when present, else the body.
func (m Message) SearchableText() string {
	if m.Transcription != "" {
		return m.Transcription
	}
	return m.Content
}

// NeedsEnrichment reports whether the message type requires a background
// worker before its content can be searched.
func (m Message) NeedsEnrichment() bool {
	return m.MessageType == MessageTypeVoice || m.MessageType == MessageTypeDocument
}

type SearchResult struct {
	Message   Message `json:"message"`
	Snippet   string  `json:"snippet"`
	MatchType string  `json:"match_type"`
	Score     float64 `json:"score"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}
