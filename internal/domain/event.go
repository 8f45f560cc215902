package domain

// Topic enumerates event categories pushed to connected clients.
type Topic string

const (
	TopicJobUpdated    Topic = "job_updated"
	TopicPostCreated   Topic = "post_created"
	TopicCommentAdded  Topic = "comment_added"
	TopicReactionAdded Topic = "reaction_added"

	// TopicResync tells a client its event stream may have gaps and it must
	// re-fetch authoritative state. Queued in place of dropped events.
	TopicResync Topic = "resync"
)

// Event is an ephemeral notification. Payload is an immutable snapshot sized
// for direct serialization to clients; a missed event is recoverable only by
// refetching state. Scope optionally narrows delivery to one room; an empty
// scope reaches every connection.
type Event struct {
	Topic   Topic  `json:"topic"`
	Scope   string `json:"scope,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// PostScope is the room joined by viewers of a single post.
func PostScope(postID string) string {
	return "post:" + postID
}
