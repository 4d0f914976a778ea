package storage

import "time"

// Download status values. A record is created NotRetrieved on first sight of
// a video ID, transitions to RetrievedNotWatched on a successful audio fetch,
// and to Watched only when an external consumer marks it. Records are never
// deleted, only transitioned.
const (
	StatusNotRetrieved        = "not_retrieved"
	StatusRetrievedNotWatched = "retrieved_not_watched"
	StatusWatched             = "watched"
)

// DownloadRecord is the durable per-video download state. VideoID is the
// unique key; AttemptCount counts every fetch attempt, success or failure.
type DownloadRecord struct {
	VideoID       string    `json:"video_id"`
	ChannelID     string    `json:"channel_id"`
	Title         string    `json:"title,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
	Status        string    `json:"status"`
	AttemptCount  int       `json:"attempt_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary holds per-status record counts for run reports.
type Summary struct {
	NotRetrieved        int `json:"not_retrieved"`
	RetrievedNotWatched int `json:"retrieved_not_watched"`
	Watched             int `json:"watched"`
}

// Total returns the total number of ledger records.
func (s Summary) Total() int {
	return s.NotRetrieved + s.RetrievedNotWatched + s.Watched
}
