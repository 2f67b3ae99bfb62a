// Package rules evaluates per-user automation rules over unread entries.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"feedzero/internal/model"
	"feedzero/internal/states"
	"feedzero/internal/storage"
)

// Engine applies a user's active rules to that user's unread entries.
// Reads are many, writes happen only for entries matching at least one rule.
type Engine struct {
	store   storage.Storage
	machine *states.Machine
	log     *slog.Logger
	now     func() time.Time
}

// New creates an Engine.
func New(store storage.Storage, machine *states.Machine, log *slog.Logger) *Engine {
	return &Engine{store: store, machine: machine, log: log, now: time.Now}
}

// Active filters rules to those whose date window contains now: started,
// and either open-ended or not yet ended.
func Active(rules []model.Rule, now time.Time) []model.Rule {
	return lo.Filter(rules, func(r model.Rule, _ int) bool {
		if r.DateStart.After(now) {
			return false
		}
		return r.DateEnd == nil || !r.DateEnd.Before(now)
	})
}

// Match reports whether the entry satisfies the rule's concrete strategy.
func Match(rule model.Rule, entry model.Entry) (bool, error) {
	switch rule.Kind {
	case model.RuleKindFeed:
		return rule.FeedID != nil && *rule.FeedID == entry.FeedID, nil
	case model.RuleKindTextMatch:
		return strings.Contains(strings.ToLower(entry.Title), strings.ToLower(rule.Text)), nil
	default:
		return false, fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

// ProcessAll runs rule processing for every active user, sequentially.
func (e *Engine) ProcessAll(ctx context.Context) error {
	users, err := e.store.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.ProcessUser(ctx, user.ID); err != nil {
			e.log.Error("process rules", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// ProcessUser evaluates the user's active rules against each of their
// unread entries. Every matching rule's action runs, in rule order; there
// is no stop-on-first-match. A rule that fails to match or apply is logged
// and skipped so it cannot block the others.
func (e *Engine) ProcessUser(ctx context.Context, userID int64) error {
	rules, err := e.store.ListRules(ctx, userID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	active := Active(rules, e.now())
	if len(active) == 0 {
		return nil
	}

	entries, err := e.store.ListUnreadEntries(ctx, userID)
	if err != nil {
		return fmt.Errorf("list unread entries: %w", err)
	}

	for _, entry := range entries {
		for _, rule := range active {
			matched, err := Match(rule, entry)
			if err != nil {
				e.log.Error("match rule", "rule_id", rule.ID, "entry_id", entry.ID, "error", err)
				continue
			}
			if !matched {
				continue
			}
			if err := e.apply(ctx, rule, entry); err != nil {
				e.log.Error("apply rule", "rule_id", rule.ID, "entry_id", entry.ID, "error", err)
			}
		}
	}
	return nil
}

// apply dispatches the rule's configured action onto the entry state
// machine for the rule's owner.
func (e *Engine) apply(ctx context.Context, rule model.Rule, entry model.Entry) error {
	switch rule.Action {
	case model.StateDeleted:
		return e.machine.MarkDeleted(ctx, entry.ID, rule.UserID)
	case model.StateHidden:
		// Declared but not yet supported as an action.
		e.log.Warn("unsupported rule action", "rule_id", rule.ID, "action", string(rule.Action))
		return nil
	default:
		return fmt.Errorf("unknown rule action %q", rule.Action)
	}
}
