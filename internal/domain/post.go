package domain

import "time"

// MediaState reflects how a post's generated media slot should render.
type MediaState string

const (
	MediaStateNone       MediaState = ""
	MediaStateGenerating MediaState = "generating"
	MediaStateReady      MediaState = "ready"
	MediaStateFailed     MediaState = "failed"
)

// Post is the content-layer view of a board message. Only the fields the
// generation and realtime subsystems touch are modeled; everything else
// belongs to the excluded CRUD surface.
type Post struct {
	ID         string         `json:"id"`
	Author     string         `json:"author"`
	Content    string         `json:"content"`
	Tags       []string       `json:"tags,omitempty"`
	MediaKind  JobKind        `json:"media_kind,omitempty"`
	MediaRef   string         `json:"media_ref,omitempty"`
	MediaState MediaState     `json:"media_state,omitempty"`
	Reactions  map[string]int `json:"reactions,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Comment is the snapshot payload carried by comment_added events.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionTally is the snapshot payload carried by reaction_added events.
// It carries the full per-post counts, not a delta.
type ReactionTally struct {
	PostID    string         `json:"post_id"`
	Reactions map[string]int `json:"reactions"`
}
