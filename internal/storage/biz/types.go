package biz

import "time"

// File kinds as classified at upload time
const (
	KindDocument = "document"
	KindVideo    = "video"
	KindPhoto    = "photo"
	KindAudio    = "audio"
)

// Locator addresses one stored copy of a file: the channel that holds it
// and the channel-scoped reference of the object.
type Locator struct {
	Channel string `json:"channel"`
	Ref     string `json:"ref"`
}

// Zero reports whether the locator is unset
func (l Locator) Zero() bool {
	return l.Channel == "" && l.Ref == ""
}

// FileEntry is one file of a link manifest. Primary is the copy served
// first; Backups are tried in order when the primary fails.
type FileEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Kind     string    `json:"kind"`
	MimeType string    `json:"mime_type"`
	Primary  Locator   `json:"primary"`
	Backups  []Locator `json:"backups,omitempty"`
}

// Copies returns primary followed by backups, skipping unset locators
func (e FileEntry) Copies() []Locator {
	out := make([]Locator, 0, 1+len(e.Backups))
	if !e.Primary.Zero() {
		out = append(out, e.Primary)
	}
	for _, b := range e.Backups {
		if !b.Zero() {
			out = append(out, b)
		}
	}
	return out
}

// Draft is an in-progress upload session accumulated file by file before
// the link is created. Drafts live in a volatile store with a TTL.
type Draft struct {
	OwnerID   int64       `json:"owner_id"`
	Category  string      `json:"category"`
	Files     []FileEntry `json:"files"`
	StartedAt time.Time   `json:"started_at"`
}
