package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"feedzero/internal/model"
)

var ignoreFeedTS = cmpopts.IgnoreFields(model.Feed{}, "DateCreated", "DateLastScraped")
var ignoreEntryTS = cmpopts.IgnoreFields(model.Entry{}, "DateCreated")
var ignoreRuleTS = cmpopts.IgnoreFields(model.Rule{}, "DateCreated")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFeed(t *testing.T, s *SQLite, slug string) model.Feed {
	t.Helper()
	feed := model.Feed{Title: "Feed " + slug, Link: "https://" + slug + ".com/rss", Slug: slug, ScrapingEnabled: true}
	if err := s.CreateFeed(context.Background(), &feed); err != nil {
		t.Fatalf("create feed: %v", err)
	}
	return feed
}

func testEntry(t *testing.T, s *SQLite, feedID int64, guid string) model.Entry {
	t.Helper()
	entry := model.Entry{
		FeedID: feedID, Title: "Entry " + guid, Link: "https://x.com/" + guid, GUID: guid,
		Slug: "entry-" + guid, Content: "<p>c</p>", Summary: "c",
		DatePublished: time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC),
	}
	if err := s.CreateEntry(context.Background(), &entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return entry
}

func TestFeedRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	feed := model.Feed{Title: "Tech Dispatch", Link: "https://example.com/rss", Slug: "tech-dispatch", ScrapingEnabled: true}
	if err := s.CreateFeed(ctx, &feed); err != nil {
		t.Fatalf("create: %v", err)
	}
	if feed.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	got, err := s.GetFeed(ctx, feed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(feed, *got, ignoreFeedTS); diff != "" {
		t.Errorf("GetFeed mismatch (-want +got):\n%s", diff)
	}
	if got.DateLastScraped != nil {
		t.Error("new feed should have no last-scraped timestamp")
	}
}

func TestFeedLinkUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	feed := model.Feed{Title: "A", Link: "https://same.com/rss", Slug: "a"}
	if err := s.CreateFeed(ctx, &feed); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := model.Feed{Title: "B", Link: "https://same.com/rss", Slug: "b"}
	if err := s.CreateFeed(ctx, &dup); err == nil {
		t.Fatal("expected unique constraint error on duplicate link")
	}
}

func TestListFeedsScrapingOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	on := testFeed(t, s, "on")
	off := model.Feed{Title: "Off", Link: "https://off.com/rss", Slug: "off", ScrapingEnabled: false}
	if err := s.CreateFeed(ctx, &off); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := s.ListFeeds(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(all))
	}

	scraping, err := s.ListFeeds(ctx, true)
	if err != nil {
		t.Fatalf("list scraping: %v", err)
	}
	if len(scraping) != 1 || scraping[0].ID != on.ID {
		t.Fatalf("expected only the scraping-enabled feed, got %+v", scraping)
	}
}

func TestFeedSlugExists(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	testFeed(t, s, "taken")

	tests := []struct {
		slug string
		want bool
	}{
		{slug: "taken", want: true},
		{slug: "free", want: false},
	}
	for _, tt := range tests {
		got, err := s.FeedSlugExists(ctx, tt.slug)
		if err != nil {
			t.Fatalf("slug exists: %v", err)
		}
		if got != tt.want {
			t.Errorf("FeedSlugExists(%q) = %v, want %v", tt.slug, got, tt.want)
		}
	}
}

func TestUpdateFeedLastScraped(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")

	at := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	if err := s.UpdateFeedLastScraped(ctx, feed.ID, at); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetFeed(ctx, feed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DateLastScraped == nil || !got.DateLastScraped.Equal(at) {
		t.Errorf("last scraped = %v, want %v", got.DateLastScraped, at)
	}
}

func TestEntryRoundTripAndDedupKey(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feedA := testFeed(t, s, "feed-a")
	feedB := testFeed(t, s, "feed-b")

	entry := testEntry(t, s, feedA.ID, "guid-1")
	got, err := s.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(entry, *got, ignoreEntryTS); diff != "" {
		t.Errorf("GetEntry mismatch (-want +got):\n%s", diff)
	}

	// Same guid within the feed violates the dedup key.
	dup := model.Entry{
		FeedID: feedA.ID, Title: "Dup", Link: "https://x.com/dup", GUID: "guid-1",
		Slug: "dup", Content: "c", DatePublished: time.Now().UTC(),
	}
	if err := s.CreateEntry(ctx, &dup); err == nil {
		t.Fatal("expected unique constraint error on (feed, guid)")
	}

	// The same guid under a different feed is independent.
	other := model.Entry{
		FeedID: feedB.ID, Title: "Other", Link: "https://x.com/other", GUID: "guid-1",
		Slug: "other", Content: "c", DatePublished: time.Now().UTC(),
	}
	if err := s.CreateEntry(ctx, &other); err != nil {
		t.Fatalf("create in other feed: %v", err)
	}

	exists, err := s.EntryExists(ctx, feedA.ID, "guid-1")
	if err != nil {
		t.Fatalf("entry exists: %v", err)
	}
	if !exists {
		t.Error("expected entry to exist in feed A")
	}
	exists, err = s.EntryExists(ctx, feedA.ID, "guid-9")
	if err != nil {
		t.Fatalf("entry exists: %v", err)
	}
	if exists {
		t.Error("unknown guid should not exist")
	}
}

func TestListUnreadEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")

	user := model.User{Username: "alice", IsActive: true}
	if err := s.CreateUser(ctx, &user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	read := testEntry(t, s, feed.ID, "guid-read")
	unread := testEntry(t, s, feed.ID, "guid-unread")
	if err := s.AddEntryState(ctx, read.ID, user.ID, model.StateRead); err != nil {
		t.Fatalf("add state: %v", err)
	}

	got, err := s.ListUnreadEntries(ctx, user.ID)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(got) != 1 || got[0].ID != unread.ID {
		t.Fatalf("expected only the unstated entry, got %+v", got)
	}

	// Another user still sees both as unread.
	other := model.User{Username: "bob", IsActive: true}
	if err := s.CreateUser(ctx, &other); err != nil {
		t.Fatalf("create user: %v", err)
	}
	got, err = s.ListUnreadEntries(ctx, other.ID)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 unread for other user, got %d", len(got))
	}
}

func TestGetOrCreateTag(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feedA := testFeed(t, s, "feed-a")
	feedB := testFeed(t, s, "feed-b")

	first, err := s.GetOrCreateTag(ctx, feedA.ID, "kubernetes", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := s.GetOrCreateTag(ctx, feedA.ID, "kubernetes", "", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("repeated get-or-create should return same tag (-first +again):\n%s", diff)
	}

	// The natural key is feed-scoped.
	elsewhere, err := s.GetOrCreateTag(ctx, feedB.ID, "kubernetes", "", "")
	if err != nil {
		t.Fatalf("create in other feed: %v", err)
	}
	if elsewhere.ID == first.ID {
		t.Error("same term in another feed must be a distinct tag")
	}
}

func TestGetOrCreateAuthor(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")

	first, err := s.GetOrCreateAuthor(ctx, feed.ID, "Jane Doe", "", "jane@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := s.GetOrCreateAuthor(ctx, feed.ID, "Jane Doe", "", "jane@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("repeated get-or-create should return same author (-first +again):\n%s", diff)
	}
}

func TestEntryStates(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")
	entry := testEntry(t, s, feed.ID, "guid-1")
	user := model.User{Username: "alice", IsActive: true}
	if err := s.CreateUser(ctx, &user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Adding the same state twice leaves one row.
	if err := s.AddEntryState(ctx, entry.ID, user.ID, model.StatePinned); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddEntryState(ctx, entry.ID, user.ID, model.StatePinned); err != nil {
		t.Fatalf("add duplicate: %v", err)
	}

	has, err := s.HasEntryState(ctx, entry.ID, user.ID, model.StatePinned)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if !has {
		t.Error("expected pinned state")
	}

	removed, err := s.RemoveEntryState(ctx, entry.ID, user.ID, model.StatePinned)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected removal to report a removed row")
	}

	// Removing again is a no-op, not an error.
	removed, err = s.RemoveEntryState(ctx, entry.ID, user.ID, model.StatePinned)
	if err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if removed {
		t.Error("second removal should report nothing removed")
	}
}

func TestRuleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")
	user := model.User{Username: "alice", IsActive: true}
	if err := s.CreateUser(ctx, &user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rule model.Rule
	}{
		{
			name: "feed rule open-ended",
			rule: model.Rule{
				UserID: user.ID, Kind: model.RuleKindFeed, Action: model.StateDeleted,
				FeedID: &feed.ID, DateStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "text rule with end date",
			rule: model.Rule{
				UserID: user.ID, Kind: model.RuleKindTextMatch, Action: model.StateDeleted,
				Text: "sale", DateStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), DateEnd: &end,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			if err := s.CreateRule(ctx, &rule); err != nil {
				t.Fatalf("create: %v", err)
			}
			if rule.ID == 0 {
				t.Fatal("expected non-zero ID")
			}
		})
	}

	got, err := s.ListRules(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(tests) {
		t.Fatalf("expected %d rules, got %d", len(tests), len(got))
	}
	for i, tt := range tests {
		want := tt.rule
		want.ID = got[i].ID
		if diff := cmp.Diff(want, got[i], ignoreRuleTS); diff != "" {
			t.Errorf("rule %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestIngestLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")

	logs := []model.IngestLog{
		{FeedID: feed.ID, State: model.IngestNotResponding, Body: "<html>503</html>"},
		{FeedID: feed.ID, State: model.IngestSuccess},
	}
	for i := range logs {
		if err := s.CreateIngestLog(ctx, &logs[i]); err != nil {
			t.Fatalf("create log %d: %v", i, err)
		}
	}

	got, err := s.ListIngestLogs(ctx, feed.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[0].State != model.IngestNotResponding || got[0].Body != "<html>503</html>" {
		t.Errorf("first log mismatch: %+v", got[0])
	}
	if got[1].State != model.IngestSuccess {
		t.Errorf("second log mismatch: %+v", got[1])
	}
}

func TestDeleteFeedCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	feed := testFeed(t, s, "f")
	entry := testEntry(t, s, feed.ID, "guid-1")

	user := model.User{Username: "alice", IsActive: true}
	if err := s.CreateUser(ctx, &user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.AddEntryState(ctx, entry.ID, user.ID, model.StateRead); err != nil {
		t.Fatalf("add state: %v", err)
	}
	tag, err := s.GetOrCreateTag(ctx, feed.ID, "news", "", "")
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if err := s.AttachTags(ctx, entry.ID, []int64{tag.ID}); err != nil {
		t.Fatalf("attach tags: %v", err)
	}
	log := model.IngestLog{FeedID: feed.ID, State: model.IngestSuccess}
	if err := s.CreateIngestLog(ctx, &log); err != nil {
		t.Fatalf("create log: %v", err)
	}

	if err := s.DeleteFeed(ctx, feed.ID); err != nil {
		t.Fatalf("delete feed: %v", err)
	}

	if _, err := s.GetFeed(ctx, feed.ID); err == nil {
		t.Error("expected error getting deleted feed")
	}
	entries, err := s.ListEntries(ctx, feed.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(entries))
	}
	remaining, err := s.ListIngestLogs(ctx, feed.ID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected 0 ingest logs, got %d", len(remaining))
	}
	has, err := s.HasEntryState(ctx, entry.ID, user.ID, model.StateRead)
	if err != nil {
		t.Fatalf("has state: %v", err)
	}
	if has {
		t.Error("expected entry states to be cascade-deleted")
	}
}

func TestListActiveUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	active := model.User{Username: "alice", IsActive: true}
	inactive := model.User{Username: "bob", IsActive: false}
	if err := s.CreateUser(ctx, &active); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, &inactive); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ListActiveUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("expected only the active user, got %+v", got)
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)
