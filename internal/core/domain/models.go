package domain

import "time"

// OwnerID identifies the chat or user a session and its jobs belong to.
type OwnerID string

// ResultItem is a single selectable search result.
type ResultItem struct {
	Index           int    `json:"index"`
	ExternalID      string `json:"external_id"`
	Title           string `json:"title"`
	Uploader        string `json:"uploader,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	SourceRef       string `json:"source_ref"`
}

// Metadata describes a fetched media source.
type Metadata struct {
	Title           string `json:"title"`
	Artist          string `json:"artist,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
}

// SearchSession is the live result list of an owner's most recent search.
type SearchSession struct {
	ID        string        `json:"id"`
	OwnerID   OwnerID       `json:"owner_id"`
	Query     string        `json:"query"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	Items     []ResultItem  `json:"items"`
}

// Expired reports whether the session has outlived its TTL at now.
func (s *SearchSession) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > s.TTL
}

// JobState is a stage of the download pipeline.
type JobState string

const (
	JobPending     JobState = "pending"
	JobFetching    JobState = "fetching"
	JobTranscoding JobState = "transcoding"
	JobTagging     JobState = "tagging"
	JobDelivering  JobState = "delivering"
	JobDone        JobState = "done"
	JobFailed      JobState = "failed"
)

// IsTerminal reports whether the state ends a job.
func (s JobState) IsTerminal() bool {
	return s == JobDone || s == JobFailed
}

// DownloadJob is a single fetch-transcode-tag-deliver run.
type DownloadJob struct {
	ID         string     `json:"job_id"`
	OwnerID    OwnerID    `json:"owner_id"`
	Item       ResultItem `json:"item"`
	State      JobState   `json:"state"`
	WorkDir    string     `json:"work_dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Stage      JobState   `json:"stage,omitempty"` // stage that failed
	Err        error      `json:"-"`
}

// Artifact is the outcome of a successful job.
type Artifact struct {
	JobID       string    `json:"job_id"`
	FileName    string    `json:"file_name"`
	Metadata    Metadata  `json:"metadata"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// JobEvent records a job state transition.
type JobEvent struct {
	JobID   string    `json:"job_id"`
	OwnerID OwnerID   `json:"owner_id"`
	State   JobState  `json:"state"`
	Stage   JobState  `json:"stage,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Button is a selectable reply option carrying a callback token.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}
