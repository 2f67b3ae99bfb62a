// Package ingest turns remote feed documents into persisted entries.
package ingest

import (
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
)

// CandidatePerson is an author or contributor as named by the source feed.
type CandidatePerson struct {
	Name  string
	Email string
}

// CandidateTag is a category term attached by the source feed.
type CandidateTag struct {
	Term string
}

// CandidateEnclosure is a media attachment declared by the source feed.
type CandidateEnclosure struct {
	Href     string
	FileType string
	Length   string
}

// Candidate is one parsed feed item before extraction. Every field is
// optional; publishers omit what they like and the extractor decides what
// is required.
//
// Content carries multi-part sections (Atom allows several); Description and
// Summary both come from the document's summary/description element, which
// feed parsers treat as aliases of each other.
type Candidate struct {
	Title        string
	Link         string
	GUID         string
	Published    string
	Content      []string
	Description  string
	Summary      string
	Tags         []CandidateTag
	Author       *CandidatePerson
	Contributors []CandidatePerson
	Enclosures   []CandidateEnclosure
}

// Parse parses a raw RSS2/Atom document into candidate entries in document
// order. A document that fails well-formedness parsing returns an error;
// the caller records the run as failed.
func Parse(raw []byte) ([]Candidate, error) {
	feed, err := gofeed.NewParser().ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed document: %w", err)
	}
	return lo.Map(feed.Items, func(item *gofeed.Item, _ int) Candidate {
		return toCandidate(item)
	}), nil
}

func toCandidate(item *gofeed.Item) Candidate {
	c := Candidate{
		Title:       item.Title,
		Link:        item.Link,
		GUID:        item.GUID,
		Published:   item.Published,
		Description: item.Description,
		Summary:     item.Description,
	}
	// Atom entries sometimes carry only an updated timestamp.
	if c.Published == "" {
		c.Published = item.Updated
	}
	if item.Content != "" {
		c.Content = []string{item.Content}
	}

	c.Tags = lo.Map(item.Categories, func(term string, _ int) CandidateTag {
		return CandidateTag{Term: term}
	})

	for i, person := range item.Authors {
		if person == nil || person.Name == "" {
			continue
		}
		p := CandidatePerson{Name: person.Name, Email: person.Email}
		// The first listed person is the author; the rest contributed.
		if i == 0 {
			c.Author = &p
			continue
		}
		c.Contributors = append(c.Contributors, p)
	}

	c.Enclosures = lo.FilterMap(item.Enclosures, func(enc *gofeed.Enclosure, _ int) (CandidateEnclosure, bool) {
		if enc == nil || enc.URL == "" {
			return CandidateEnclosure{}, false
		}
		return CandidateEnclosure{Href: enc.URL, FileType: enc.Type, Length: enc.Length}, true
	})

	return c
}
