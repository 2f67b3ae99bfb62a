// Package states implements the per-user entry state machine.
//
// A user's relationship to an entry is a set of state rows; an entry with no
// rows is unread. Transitions are idempotent, and removing a state the user
// does not hold is a normal no-op.
package states

import (
	"context"
	"fmt"
	"log/slog"

	"feedzero/internal/model"
)

// StateStore is the slice of persistence the state machine needs.
type StateStore interface {
	AddEntryState(ctx context.Context, entryID, userID int64, state model.State) error
	RemoveEntryState(ctx context.Context, entryID, userID int64, state model.State) (bool, error)
	HasEntryState(ctx context.Context, entryID, userID int64, state model.State) (bool, error)
}

// Machine applies state transitions for (entry, user) pairs.
//
// Exclusivity is enforced here, not in the schema: saving clears a pin, and
// deleting clears both pins and saves.
type Machine struct {
	store StateStore
	log   *slog.Logger
}

// New creates a Machine over the given store.
func New(store StateStore, log *slog.Logger) *Machine {
	return &Machine{store: store, log: log}
}

// MarkRead records the read state.
func (m *Machine) MarkRead(ctx context.Context, entryID, userID int64) error {
	return m.add(ctx, entryID, userID, model.StateRead)
}

// MarkPinned records the pinned state.
func (m *Machine) MarkPinned(ctx context.Context, entryID, userID int64) error {
	return m.add(ctx, entryID, userID, model.StatePinned)
}

// MarkUnpinned removes the pinned state if present.
func (m *Machine) MarkUnpinned(ctx context.Context, entryID, userID int64) error {
	return m.remove(ctx, entryID, userID, model.StatePinned)
}

// MarkSaved records the saved state, clearing a pin first: saved and pinned
// are mutually exclusive.
func (m *Machine) MarkSaved(ctx context.Context, entryID, userID int64) error {
	if err := m.remove(ctx, entryID, userID, model.StatePinned); err != nil {
		return err
	}
	return m.add(ctx, entryID, userID, model.StateSaved)
}

// MarkUnsaved removes the saved state if present.
func (m *Machine) MarkUnsaved(ctx context.Context, entryID, userID int64) error {
	return m.remove(ctx, entryID, userID, model.StateSaved)
}

// MarkDeleted records the deleted state, clearing any pinned or saved state
// first.
func (m *Machine) MarkDeleted(ctx context.Context, entryID, userID int64) error {
	if err := m.remove(ctx, entryID, userID, model.StatePinned); err != nil {
		return err
	}
	if err := m.remove(ctx, entryID, userID, model.StateSaved); err != nil {
		return err
	}
	return m.add(ctx, entryID, userID, model.StateDeleted)
}

// MarkUndeleted removes the deleted state if present.
func (m *Machine) MarkUndeleted(ctx context.Context, entryID, userID int64) error {
	return m.remove(ctx, entryID, userID, model.StateDeleted)
}

// Has reports whether the user holds the given state on the entry.
func (m *Machine) Has(ctx context.Context, entryID, userID int64, state model.State) (bool, error) {
	return m.store.HasEntryState(ctx, entryID, userID, state)
}

func (m *Machine) add(ctx context.Context, entryID, userID int64, state model.State) error {
	if err := m.store.AddEntryState(ctx, entryID, userID, state); err != nil {
		return fmt.Errorf("mark %s: %w", state, err)
	}
	return nil
}

func (m *Machine) remove(ctx context.Context, entryID, userID int64, state model.State) error {
	removed, err := m.store.RemoveEntryState(ctx, entryID, userID, state)
	if err != nil {
		return fmt.Errorf("unmark %s: %w", state, err)
	}
	if !removed {
		m.log.Debug("no state row to remove", "entry_id", entryID, "user_id", userID, "state", state)
	}
	return nil
}
