// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"feedzero/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateFeed(ctx context.Context, feed *model.Feed) error
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
	ListFeeds(ctx context.Context, scrapingOnly bool) ([]model.Feed, error)
	FeedSlugExists(ctx context.Context, slug string) (bool, error)
	UpdateFeedLastScraped(ctx context.Context, feedID int64, at time.Time) error
	DeleteFeed(ctx context.Context, id int64) error

	CreateEntry(ctx context.Context, entry *model.Entry) error
	GetEntry(ctx context.Context, id int64) (*model.Entry, error)
	EntryExists(ctx context.Context, feedID int64, guid string) (bool, error)
	EntrySlugExists(ctx context.Context, feedID int64, slug string) (bool, error)
	ListEntries(ctx context.Context, feedID int64) ([]model.Entry, error)
	ListUnreadEntries(ctx context.Context, userID int64) ([]model.Entry, error)
	AttachTags(ctx context.Context, entryID int64, tagIDs []int64) error
	AttachContributors(ctx context.Context, entryID int64, authorIDs []int64) error
	CreateEnclosure(ctx context.Context, enc *model.Enclosure) error

	GetOrCreateTag(ctx context.Context, feedID int64, term, scheme, label string) (*model.Tag, error)
	GetOrCreateAuthor(ctx context.Context, feedID int64, name, link, email string) (*model.Author, error)

	AddEntryState(ctx context.Context, entryID, userID int64, state model.State) error
	RemoveEntryState(ctx context.Context, entryID, userID int64, state model.State) (bool, error)
	HasEntryState(ctx context.Context, entryID, userID int64, state model.State) (bool, error)

	CreateUser(ctx context.Context, user *model.User) error
	ListActiveUsers(ctx context.Context) ([]model.User, error)

	CreateRule(ctx context.Context, rule *model.Rule) error
	ListRules(ctx context.Context, userID int64) ([]model.Rule, error)

	CreateIngestLog(ctx context.Context, log *model.IngestLog) error
	ListIngestLogs(ctx context.Context, feedID int64) ([]model.IngestLog, error)

	Close() error
}
