// Package chathistory incrementally syncs a group's message history from a
// paginated chat API against a local cache, then filters and formats the
// merged result.
package chathistory

// Sender identifies a message author.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// SegmentData carries the fields of the segment types we render. Unknown
// segment types keep their type tag only.
type SegmentData struct {
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
	QQ   string `json:"qq,omitempty"`
}

// Segment is one component of a rich message.
type Segment struct {
	Type string      `json:"type"`
	Data SegmentData `json:"data"`
}

// Message is one raw group message as the chat API reports it. Time is a
// unix timestamp in seconds.
type Message struct {
	MessageID int64     `json:"message_id"`
	Time      int64     `json:"time"`
	Sender    Sender    `json:"sender"`
	Segments  []Segment `json:"message"`
}
