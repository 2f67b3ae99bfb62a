package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedzero/internal/fetch"
	"feedzero/internal/model"
	"feedzero/internal/slug"
	"feedzero/internal/storage"
)

// EntryHook runs after an entry is persisted, for enrichment side effects.
// Hook errors are logged and never abort the run.
type EntryHook func(ctx context.Context, entry *model.Entry) error

// Service orchestrates one ingestion run per feed: fetch, parse, dedup,
// extract, persist, log. Per-entry failures are contained so one bad entry
// never aborts the batch.
type Service struct {
	store   storage.Storage
	fetcher *fetch.Fetcher
	hook    EntryHook
	log     *slog.Logger
}

// New creates an ingestion Service.
func New(store storage.Storage, fetcher *fetch.Fetcher, log *slog.Logger) *Service {
	return &Service{store: store, fetcher: fetcher, log: log}
}

// SetEntryHook installs a post-create hook invoked for each persisted entry.
func (s *Service) SetEntryHook(hook EntryHook) {
	s.hook = hook
}

// SyncAll runs one ingestion unit per scraping-enabled feed, sequentially.
func (s *Service) SyncAll(ctx context.Context) error {
	feeds, err := s.store.ListFeeds(ctx, true)
	if err != nil {
		return fmt.Errorf("list feeds: %w", err)
	}
	for _, feed := range feeds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.SyncFeed(ctx, feed); err != nil {
			s.log.Error("sync feed", "feed_id", feed.ID, "link", feed.Link, "error", err)
		}
	}
	return nil
}

// SyncFeed runs one ingestion unit for a single feed and records its
// terminal outcome in the ingest log. Fetch and whole-document parse
// failures end the run; everything else is contained per entry. The
// returned error reflects infrastructure problems only (store writes),
// never remote feed quality.
func (s *Service) SyncFeed(ctx context.Context, feed model.Feed) error {
	s.log.Debug("processing feed", "feed_id", feed.ID, "link", feed.Link)

	doc, err := s.fetcher.Fetch(ctx, feed.Link)
	if err != nil {
		// The feed's last-scraped timestamp is deliberately not
		// advanced on this path.
		var statusErr *fetch.StatusError
		body := ""
		if errors.As(err, &statusErr) {
			body = string(statusErr.Body)
		}
		s.log.Error("fetch feed", "feed_id", feed.ID, "link", feed.Link, "error", err)
		return s.writeLog(ctx, feed.ID, model.IngestNotResponding, body)
	}

	candidates, err := Parse(doc.Body)
	if err != nil {
		s.log.Error("parse feed document", "feed_id", feed.ID, "error", err)
		if err := s.writeLog(ctx, feed.ID, model.IngestFailed, string(doc.Body)); err != nil {
			return err
		}
		return s.touchLastScraped(ctx, feed.ID)
	}

	hasErrored := false
	created := 0
	for _, candidate := range candidates {
		exists, err := s.store.EntryExists(ctx, feed.ID, candidate.GUID)
		if err != nil {
			s.log.Error("dedup check", "feed_id", feed.ID, "guid", candidate.GUID, "error", err)
			hasErrored = true
			continue
		}
		if exists {
			continue
		}

		s.log.Info("new entry found", "feed_id", feed.ID, "guid", candidate.GUID)
		if err := s.ingestOne(ctx, feed, candidate); err != nil {
			// A uniqueness violation from a concurrent run lands
			// here too; it is skipped like any per-entry failure.
			s.log.Error("ingest entry", "feed_id", feed.ID, "guid", candidate.GUID, "error", err)
			hasErrored = true
			continue
		}
		created++
	}

	state := model.IngestSuccess
	if hasErrored {
		state = model.IngestPartial
	}
	if err := s.writeLog(ctx, feed.ID, state, ""); err != nil {
		return err
	}

	s.log.Debug("feed processed", "feed_id", feed.ID, "created", created, "state", string(state))
	return s.touchLastScraped(ctx, feed.ID)
}

// ingestOne persists a single candidate: side entities first, then the
// entry, then its relation rows.
func (s *Service) ingestOne(ctx context.Context, feed model.Feed, candidate Candidate) error {
	extracted, err := Extract(candidate)
	if err != nil {
		return err
	}

	var authorID *int64
	if candidate.Author != nil {
		author, err := s.store.GetOrCreateAuthor(ctx, feed.ID, candidate.Author.Name, "", candidate.Author.Email)
		if err != nil {
			return fmt.Errorf("resolve author: %w", err)
		}
		authorID = &author.ID
	}

	var contributorIDs []int64
	for _, person := range candidate.Contributors {
		author, err := s.store.GetOrCreateAuthor(ctx, feed.ID, person.Name, "", person.Email)
		if err != nil {
			return fmt.Errorf("resolve contributor: %w", err)
		}
		contributorIDs = append(contributorIDs, author.ID)
	}

	var tagIDs []int64
	for _, tag := range candidate.Tags {
		if tag.Term == "" {
			continue
		}
		resolved, err := s.store.GetOrCreateTag(ctx, feed.ID, tag.Term, "", "")
		if err != nil {
			return fmt.Errorf("resolve tag: %w", err)
		}
		tagIDs = append(tagIDs, resolved.ID)
	}

	entrySlug, err := slug.Make(extracted.Title, func(candidate string) (bool, error) {
		return s.store.EntrySlugExists(ctx, feed.ID, candidate)
	})
	if err != nil {
		return fmt.Errorf("generate slug: %w", err)
	}

	entry := model.Entry{
		FeedID:        feed.ID,
		AuthorID:      authorID,
		Title:         extracted.Title,
		Link:          extracted.Link,
		GUID:          extracted.GUID,
		Slug:          entrySlug,
		Content:       extracted.Content,
		Summary:       extracted.Summary,
		DatePublished: extracted.DatePublished,
	}
	if err := s.store.CreateEntry(ctx, &entry); err != nil {
		return err
	}

	if err := s.store.AttachTags(ctx, entry.ID, tagIDs); err != nil {
		return fmt.Errorf("attach tags: %w", err)
	}
	if err := s.store.AttachContributors(ctx, entry.ID, contributorIDs); err != nil {
		return fmt.Errorf("attach contributors: %w", err)
	}
	for _, enc := range candidate.Enclosures {
		enclosure := model.Enclosure{
			EntryID:  entry.ID,
			Href:     enc.Href,
			FileType: enc.FileType,
			Length:   enc.Length,
		}
		if err := s.store.CreateEnclosure(ctx, &enclosure); err != nil {
			return fmt.Errorf("create enclosure: %w", err)
		}
	}

	if s.hook != nil {
		if err := s.hook(ctx, &entry); err != nil {
			s.log.Error("entry hook", "entry_id", entry.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) writeLog(ctx context.Context, feedID int64, state model.IngestState, body string) error {
	log := model.IngestLog{FeedID: feedID, State: state, Body: body}
	if err := s.store.CreateIngestLog(ctx, &log); err != nil {
		return fmt.Errorf("write ingest log: %w", err)
	}
	return nil
}

func (s *Service) touchLastScraped(ctx context.Context, feedID int64) error {
	if err := s.store.UpdateFeedLastScraped(ctx, feedID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update last scraped: %w", err)
	}
	return nil
}
