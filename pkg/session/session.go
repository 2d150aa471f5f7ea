// Package session tracks the conversation state of the Responses protocol:
// the id of the last response, used as previous_response_id, and the ids of
// responses the provider was asked to store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/kv"
)

// Key is the kv key of the persisted session.
const Key = "AI_TR_SESSION_V1"

// State is the persisted session record.
type State struct {
	SessionID          string   `json:"sessionId"`
	PreviousResponseID string   `json:"previousResponseId,omitempty"`
	StoredResponseIDs  []string `json:"storedResponseIds"`
}

// Tracker reads and updates the session record. Read-modify-write
// sequences are serialized by a mutex.
type Tracker struct {
	store kv.Store
	newID func() string

	mu sync.Mutex
}

// NewTracker returns a tracker persisting to store.
func NewTracker(store kv.Store) *Tracker {
	return &Tracker{store: store, newID: uuid.NewString}
}

// Current returns the session, or nil when none exists. A corrupted record
// is treated as absent.
func (t *Tracker) Current(ctx context.Context) (*State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

// New starts a fresh session and persists it.
func (t *Tracker) New(ctx context.Context) (*State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.fresh()
	if err := t.save(ctx, s); err != nil {
		return nil, err
	}
	debug.Log("session", "session started", "session_id", s.SessionID)
	return s, nil
}

// Reset removes the session.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Delete(ctx, Key); err != nil {
		return fmt.Errorf("resetting session: %w", err)
	}
	return nil
}

// RecordResponse remembers id as the previous response and, if store is
// set, adds it to the stored ids. A session is created when none exists.
// Empty ids are ignored.
func (t *Tracker) RecordResponse(ctx context.Context, id string, store bool) error {
	if id == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.load(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		s = t.fresh()
	}
	s.PreviousResponseID = id
	if store {
		s.StoredResponseIDs = append(s.StoredResponseIDs, id)
	}
	debug.Log("session", "response recorded", "response_id", id, "stored", store)
	return t.save(ctx, s)
}

// PreviousResponseID returns the id of the last recorded response, or "".
func (t *Tracker) PreviousResponseID(ctx context.Context) (string, error) {
	s, err := t.Current(ctx)
	if err != nil || s == nil {
		return "", err
	}
	return s.PreviousResponseID, nil
}

// PurgeStored forgets the stored response ids and returns how many there
// were. Only the local record is cleared; the provider keeps its copies.
func (t *Tracker) PurgeStored(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.load(ctx)
	if err != nil || s == nil {
		return 0, err
	}
	n := len(s.StoredResponseIDs)
	s.StoredResponseIDs = []string{}
	if err := t.save(ctx, s); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Tracker) fresh() *State {
	return &State{SessionID: t.newID(), StoredResponseIDs: []string{}}
}

func (t *Tracker) load(ctx context.Context) (*State, error) {
	data, err := t.store.Get(ctx, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		debug.Log("session", "discarding unreadable session record", "error", err.Error())
		return nil, nil
	}
	if s.StoredResponseIDs == nil {
		s.StoredResponseIDs = []string{}
	}
	return &s, nil
}

func (t *Tracker) save(ctx context.Context, s *State) error {
	if err := kv.SetJSON(ctx, t.store, Key, s); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}
