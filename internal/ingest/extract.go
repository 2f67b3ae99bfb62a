package ingest

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"feedzero/internal/sanitize"
)

// ContentError reports a candidate entry with no usable value for one of
// its content fields. It is per-entry and non-terminal: the orchestrator
// skips the entry and continues the run.
type ContentError struct {
	Field string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("entry has no usable %s field", e.Field)
}

// ValidationError reports a candidate entry missing a required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entry is missing required field %s", e.Field)
}

// Extracted is the canonical field set persisted for an entry. Content is
// the sanitized article form; Summary is the markup-free teaser form.
type Extracted struct {
	Title         string
	Link          string
	GUID          string
	DatePublished time.Time
	Content       string
	Summary       string
}

// Extract resolves a candidate's field fallbacks into the canonical entry
// shape. Title, link, guid, and a parseable published date are required;
// content falls back from content to description, summary from its own
// field, and the absence of either is a classified ContentError.
func Extract(c Candidate) (*Extracted, error) {
	if c.Title == "" {
		return nil, &ValidationError{Field: "title"}
	}
	if c.Link == "" {
		return nil, &ValidationError{Field: "link"}
	}
	if c.GUID == "" {
		return nil, &ValidationError{Field: "guid"}
	}
	if c.Published == "" {
		return nil, &ValidationError{Field: "published"}
	}

	published, err := dateparse.ParseAny(c.Published)
	if err != nil {
		return nil, fmt.Errorf("parse published date %q: %w", c.Published, err)
	}

	content, err := extractContent(c)
	if err != nil {
		return nil, err
	}
	summary, err := extractSummary(c)
	if err != nil {
		return nil, err
	}

	return &Extracted{
		Title:         c.Title,
		Link:          c.Link,
		GUID:          c.GUID,
		DatePublished: published.UTC(),
		Content:       content,
		Summary:       summary,
	}, nil
}

func extractContent(c Candidate) (string, error) {
	if len(c.Content) > 0 {
		return sanitize.CleanSections(c.Content).Article, nil
	}
	if c.Description != "" {
		return sanitize.Clean(c.Description).Article, nil
	}
	return "", &ContentError{Field: "content"}
}

// extractSummary keeps the teaser form: a summary should be brief.
func extractSummary(c Candidate) (string, error) {
	if c.Summary == "" {
		return "", &ContentError{Field: "summary"}
	}
	return sanitize.Clean(c.Summary).Teaser, nil
}
