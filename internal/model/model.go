// Package model defines the domain types used across the application.
package model

import "time"

// Feed represents a remote RSS/Atom source being watched.
type Feed struct {
	ID              int64
	Title           string
	Link            string
	Slug            string
	ScrapingEnabled bool
	DateLastScraped *time.Time
	DateCreated     time.Time
}

// Author is a feed-scoped author of one or more entries.
type Author struct {
	ID     int64
	FeedID int64
	Name   string
	Link   string
	Email  string
}

// Tag categorizes entries within a feed.
type Tag struct {
	ID     int64
	FeedID int64
	Term   string
	Scheme string
	Label  string
}

// Entry is a single ingested item belonging to a feed.
//
// Entries are created only by the ingestion pipeline and never updated in
// place; (GUID, FeedID) is unique and a collision means the entry is skipped.
type Entry struct {
	ID            int64
	FeedID        int64
	AuthorID      *int64
	Title         string
	Link          string
	GUID          string
	Slug          string
	Content       string
	Summary       string
	DatePublished time.Time
	DateCreated   time.Time
}

// Enclosure is a media attachment on an entry.
type Enclosure struct {
	ID       int64
	EntryID  int64
	Href     string
	FileType string
	Length   string
}

// State identifies a user's relationship to an entry.
type State string

// Entry states a user (or rule) can apply. An entry with no state row for a
// user is implicitly unread.
const (
	StateUnread  State = "unread"
	StateRead    State = "read"
	StateSaved   State = "saved"
	StatePinned  State = "pinned"
	StateDeleted State = "deleted"
	StateHidden  State = "hidden"
)

// EntryState is one user's flag on one entry. A user may hold several
// distinct states on an entry at once, but never the same state twice.
type EntryState struct {
	ID          int64
	EntryID     int64
	UserID      int64
	State       State
	DateCreated time.Time
}

// User is an account that watches feeds and owns rules.
type User struct {
	ID          int64
	Username    string
	IsActive    bool
	DateCreated time.Time
}

// RuleKind discriminates the concrete matching strategy of a rule.
type RuleKind string

// Supported rule kinds.
const (
	RuleKindFeed      RuleKind = "feed"
	RuleKindTextMatch RuleKind = "text_match"
)

// Rule is a user-owned automation trigger evaluated against unread entries.
// Exactly one variant payload is meaningful per kind: FeedID for feed rules,
// Text for text-match rules.
type Rule struct {
	ID          int64
	UserID      int64
	Kind        RuleKind
	Action      State
	FeedID      *int64
	Text        string
	DateStart   time.Time
	DateEnd     *time.Time
	DateCreated time.Time
}

// IngestState is the terminal outcome recorded for one ingestion run.
type IngestState string

// Ingestion outcomes.
const (
	IngestSuccess       IngestState = "success"
	IngestPartial       IngestState = "partial"
	IngestFailed        IngestState = "failed"
	IngestNotResponding IngestState = "not_responding"
)

// IngestLog is an append-only audit record of one ingestion attempt.
// Body holds the raw response document on failure paths, for forensics.
type IngestLog struct {
	ID          int64
	FeedID      int64
	State       IngestState
	Body        string
	DateCreated time.Time
}
