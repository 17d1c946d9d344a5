package chat

import "time"

// Conversation ties a user to one video they are talking about.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	VideoID   string    `json:"videoId"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Video captures a previously ingested video. Transcript acquisition and
// chunking happen out of process; the backend only references the id.
type Video struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	YoutubeURL string    `json:"youtubeUrl,omitempty"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}
