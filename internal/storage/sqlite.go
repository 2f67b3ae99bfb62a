package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedzero/internal/model"
	"feedzero/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateFeed inserts a new feed and populates its ID and CreatedAt.
func (s *SQLite) CreateFeed(ctx context.Context, feed *model.Feed) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (title, link, slug, scraping_enabled, date_created)
		 VALUES (?, ?, ?, ?, ?)`,
		feed.Title, feed.Link, feed.Slug, boolToInt(feed.ScrapingEnabled), now,
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	feed.ID = id
	feed.DateCreated, _ = time.Parse(timeLayout, now)
	return nil
}

// GetFeed returns a single feed by its ID.
func (s *SQLite) GetFeed(ctx context.Context, id int64) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, link, slug, scraping_enabled, date_last_scraped, date_created
		 FROM feeds WHERE id = ?`, id,
	)
	return scanFeed(row)
}

// ListFeeds returns all feeds, or only those with scraping enabled.
func (s *SQLite) ListFeeds(ctx context.Context, scrapingOnly bool) ([]model.Feed, error) {
	q := `SELECT id, title, link, slug, scraping_enabled, date_last_scraped, date_created
	      FROM feeds`
	if scrapingOnly {
		q += ` WHERE scraping_enabled = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// FeedSlugExists reports whether any feed already uses the given slug.
func (s *SQLite) FeedSlugExists(ctx context.Context, slug string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM feeds WHERE slug = ?`, slug)
}

// UpdateFeedLastScraped advances the feed's last-scraped timestamp.
func (s *SQLite) UpdateFeedLastScraped(ctx context.Context, feedID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET date_last_scraped = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), feedID,
	)
	if err != nil {
		return fmt.Errorf("update last scraped: %w", err)
	}
	return nil
}

// DeleteFeed removes a feed together with everything it owns.
func (s *SQLite) DeleteFeed(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cascade := []string{
		`DELETE FROM entry_states WHERE entry_id IN (SELECT id FROM entries WHERE feed_id = ?)`,
		`DELETE FROM entry_tags WHERE entry_id IN (SELECT id FROM entries WHERE feed_id = ?)`,
		`DELETE FROM entry_contributors WHERE entry_id IN (SELECT id FROM entries WHERE feed_id = ?)`,
		`DELETE FROM enclosures WHERE entry_id IN (SELECT id FROM entries WHERE feed_id = ?)`,
		`DELETE FROM entries WHERE feed_id = ?`,
		`DELETE FROM tags WHERE feed_id = ?`,
		`DELETE FROM authors WHERE feed_id = ?`,
		`DELETE FROM ingest_logs WHERE feed_id = ?`,
		`DELETE FROM feeds WHERE id = ?`,
	}
	for _, q := range cascade {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("cascade delete feed: %w", err)
		}
	}
	return tx.Commit()
}

// CreateEntry inserts a new entry and populates its ID and DateCreated.
// The (feed_id, guid) unique constraint surfaces as an error here; callers
// treat that as a dedup race and skip the entry.
func (s *SQLite) CreateEntry(ctx context.Context, entry *model.Entry) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (feed_id, author_id, title, link, guid, slug, content, summary, date_published, date_created)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.FeedID, entry.AuthorID, entry.Title, entry.Link, entry.GUID, entry.Slug,
		entry.Content, entry.Summary, entry.DatePublished.UTC().Format(timeLayout), now,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	entry.DateCreated, _ = time.Parse(timeLayout, now)
	return nil
}

// GetEntry returns a single entry by its ID.
func (s *SQLite) GetEntry(ctx context.Context, id int64) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx, entrySelect+` WHERE id = ?`, id)
	return scanEntry(row)
}

// EntryExists reports whether the feed already holds an entry with the guid.
func (s *SQLite) EntryExists(ctx context.Context, feedID int64, guid string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM entries WHERE feed_id = ? AND guid = ?`, feedID, guid)
}

// EntrySlugExists reports whether the slug is taken within the feed.
func (s *SQLite) EntrySlugExists(ctx context.Context, feedID int64, slug string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM entries WHERE feed_id = ? AND slug = ?`, feedID, slug)
}

const entrySelect = `SELECT id, feed_id, author_id, title, link, guid, slug, content, summary, date_published, date_created
	 FROM entries`

// ListEntries returns all entries for a feed in insertion order.
func (s *SQLite) ListEntries(ctx context.Context, feedID int64) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, entrySelect+` WHERE feed_id = ? ORDER BY id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// ListUnreadEntries returns entries carrying no state at all for the user,
// newest first. Unread is the absence of a state row.
func (s *SQLite) ListUnreadEntries(ctx context.Context, userID int64) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, entrySelect+`
		 WHERE NOT EXISTS (
			SELECT 1 FROM entry_states st WHERE st.entry_id = entries.id AND st.user_id = ?
		 )
		 ORDER BY date_published DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// AttachTags links tags to an entry. Re-attaching is a no-op.
func (s *SQLite) AttachTags(ctx context.Context, entryID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO entry_tags (entry_id, tag_id) VALUES (?, ?)`, entryID, tagID)
		if err != nil {
			return fmt.Errorf("attach tag: %w", err)
		}
	}
	return nil
}

// AttachContributors links contributing authors to an entry.
func (s *SQLite) AttachContributors(ctx context.Context, entryID int64, authorIDs []int64) error {
	for _, authorID := range authorIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO entry_contributors (entry_id, author_id) VALUES (?, ?)`, entryID, authorID)
		if err != nil {
			return fmt.Errorf("attach contributor: %w", err)
		}
	}
	return nil
}

// CreateEnclosure inserts a media enclosure for an entry.
func (s *SQLite) CreateEnclosure(ctx context.Context, enc *model.Enclosure) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO enclosures (entry_id, href, file_type, length) VALUES (?, ?, ?, ?)`,
		enc.EntryID, enc.Href, enc.FileType, enc.Length,
	)
	if err != nil {
		return fmt.Errorf("insert enclosure: %w", err)
	}
	enc.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// GetOrCreateTag resolves a tag by (feed, term), creating it when missing.
func (s *SQLite) GetOrCreateTag(ctx context.Context, feedID int64, term, scheme, label string) (*model.Tag, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (feed_id, term, scheme, label) VALUES (?, ?, ?, ?)`,
		feedID, term, scheme, label,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}

	var tag model.Tag
	err = s.db.QueryRowContext(ctx,
		`SELECT id, feed_id, term, scheme, label FROM tags WHERE feed_id = ? AND term = ?`,
		feedID, term,
	).Scan(&tag.ID, &tag.FeedID, &tag.Term, &tag.Scheme, &tag.Label)
	if err != nil {
		return nil, fmt.Errorf("select tag: %w", err)
	}
	return &tag, nil
}

// GetOrCreateAuthor resolves an author by (feed, name), creating it when missing.
func (s *SQLite) GetOrCreateAuthor(ctx context.Context, feedID int64, name, link, email string) (*model.Author, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO authors (feed_id, name, link, email) VALUES (?, ?, ?, ?)`,
		feedID, name, link, email,
	)
	if err != nil {
		return nil, fmt.Errorf("insert author: %w", err)
	}

	var author model.Author
	err = s.db.QueryRowContext(ctx,
		`SELECT id, feed_id, name, link, email FROM authors WHERE feed_id = ? AND name = ?`,
		feedID, name,
	).Scan(&author.ID, &author.FeedID, &author.Name, &author.Link, &author.Email)
	if err != nil {
		return nil, fmt.Errorf("select author: %w", err)
	}
	return &author, nil
}

// AddEntryState records a state for (entry, user). Adding a state the user
// already holds is a no-op, which makes transitions idempotent.
func (s *SQLite) AddEntryState(ctx context.Context, entryID, userID int64, state model.State) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entry_states (entry_id, user_id, state, date_created)
		 VALUES (?, ?, ?, ?)`,
		entryID, userID, string(state), now,
	)
	if err != nil {
		return fmt.Errorf("add entry state: %w", err)
	}
	return nil
}

// RemoveEntryState deletes a state row if present, reporting whether one
// was removed. Removing an absent state is a normal no-op.
func (s *SQLite) RemoveEntryState(ctx context.Context, entryID, userID int64, state model.State) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entry_states WHERE entry_id = ? AND user_id = ? AND state = ?`,
		entryID, userID, string(state),
	)
	if err != nil {
		return false, fmt.Errorf("remove entry state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// HasEntryState reports whether the user holds the state on the entry.
func (s *SQLite) HasEntryState(ctx context.Context, entryID, userID int64, state model.State) (bool, error) {
	return s.exists(ctx,
		`SELECT COUNT(*) FROM entry_states WHERE entry_id = ? AND user_id = ? AND state = ?`,
		entryID, userID, string(state),
	)
}

// CreateUser inserts a new user and populates its ID and DateCreated.
func (s *SQLite) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, is_active, date_created) VALUES (?, ?, ?)`,
		user.Username, boolToInt(user.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	user.DateCreated, _ = time.Parse(timeLayout, now)
	return nil
}

// ListActiveUsers returns all users eligible for rule processing.
func (s *SQLite) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, is_active, date_created FROM users WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var isActive int
		var created string
		if err := rows.Scan(&u.ID, &u.Username, &isActive, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.IsActive = isActive == 1
		u.DateCreated, _ = time.Parse(timeLayout, created)
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateRule inserts a new rule and populates its ID and DateCreated.
func (s *SQLite) CreateRule(ctx context.Context, rule *model.Rule) error {
	now := time.Now().UTC().Format(timeLayout)
	var dateEnd *string
	if rule.DateEnd != nil {
		v := rule.DateEnd.UTC().Format(timeLayout)
		dateEnd = &v
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (user_id, kind, action, feed_id, text, date_start, date_end, date_created)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.UserID, string(rule.Kind), string(rule.Action), rule.FeedID, rule.Text,
		rule.DateStart.UTC().Format(timeLayout), dateEnd, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rule.ID = id
	rule.DateCreated, _ = time.Parse(timeLayout, now)
	return nil
}

// ListRules returns all of a user's rules in creation order.
func (s *SQLite) ListRules(ctx context.Context, userID int64) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, action, feed_id, text, date_start, date_end, date_created
		 FROM rules WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		var kind, action, start string
		var end sql.NullString
		var created string
		if err := rows.Scan(&r.ID, &r.UserID, &kind, &action, &r.FeedID, &r.Text, &start, &end, &created); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Kind = model.RuleKind(kind)
		r.Action = model.State(action)
		r.DateStart, _ = time.Parse(timeLayout, start)
		if end.Valid {
			t, _ := time.Parse(timeLayout, end.String)
			r.DateEnd = &t
		}
		r.DateCreated, _ = time.Parse(timeLayout, created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateIngestLog appends one audit record for an ingestion run.
func (s *SQLite) CreateIngestLog(ctx context.Context, log *model.IngestLog) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_logs (feed_id, state, body, date_created) VALUES (?, ?, ?, ?)`,
		log.FeedID, string(log.State), log.Body, now,
	)
	if err != nil {
		return fmt.Errorf("insert ingest log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	log.ID = id
	log.DateCreated, _ = time.Parse(timeLayout, now)
	return nil
}

// ListIngestLogs returns a feed's ingest logs in creation order.
func (s *SQLite) ListIngestLogs(ctx context.Context, feedID int64) ([]model.IngestLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, feed_id, state, body, date_created FROM ingest_logs WHERE feed_id = ? ORDER BY id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("query ingest logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.IngestLog
	for rows.Next() {
		var l model.IngestLog
		var state, created string
		if err := rows.Scan(&l.ID, &l.FeedID, &state, &l.Body, &created); err != nil {
			return nil, fmt.Errorf("scan ingest log: %w", err)
		}
		l.State = model.IngestState(state)
		l.DateCreated, _ = time.Parse(timeLayout, created)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLite) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return count > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFeed(row scannable) (*model.Feed, error) {
	var f model.Feed
	var scraping int
	var lastScraped, created sql.NullString
	err := row.Scan(&f.ID, &f.Title, &f.Link, &f.Slug, &scraping, &lastScraped, &created)
	if err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	f.ScrapingEnabled = scraping == 1
	if lastScraped.Valid {
		t, _ := time.Parse(timeLayout, lastScraped.String)
		f.DateLastScraped = &t
	}
	if created.Valid {
		f.DateCreated, _ = time.Parse(timeLayout, created.String)
	}
	return &f, nil
}

func scanEntry(row scannable) (*model.Entry, error) {
	var e model.Entry
	var published, created string
	err := row.Scan(&e.ID, &e.FeedID, &e.AuthorID, &e.Title, &e.Link, &e.GUID, &e.Slug,
		&e.Content, &e.Summary, &published, &created)
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.DatePublished, _ = time.Parse(timeLayout, published)
	e.DateCreated, _ = time.Parse(timeLayout, created)
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]model.Entry, error) {
	var entries []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
