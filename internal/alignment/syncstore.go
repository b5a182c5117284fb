package alignment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Slot names a persisted snapshot of sync state.
type Slot string

const (
	// SlotAutosave is written on every committed change after initialization.
	SlotAutosave Slot = "autosave"
	// SlotManual is written only on an explicit save and wins on load.
	SlotManual Slot = "manual"
)

const (
	autosaveKey = "multiAngleSyncState_auto_v1"
	manualKey   = "multiAngleSyncState_saved_v1"
)

var (
	// ErrPersistenceWriteFailed is returned when the collaborator rejects a write.
	// In-memory state stays authoritative.
	ErrPersistenceWriteFailed = errors.New("persisting sync state failed")

	// ErrPersistenceCorrupt is returned when a stored payload cannot be read
	// as sync state. Callers treat the slot as absent.
	ErrPersistenceCorrupt = errors.New("persisted sync state is corrupt")

	errUnknownSlot = errors.New("unknown persistence slot")
)

// Key returns the persistence key used for the slot.
func (s Slot) Key() (string, error) {
	switch s {
	case SlotAutosave:
		return autosaveKey, nil
	case SlotManual:
		return manualKey, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownSlot, string(s))
}

// LoadedSyncState is a payload read back from a slot. Each field was decoded
// on its own: a nil field was absent or of the wrong type.
type LoadedSyncState struct {
	ReferenceIndex *int
	EndPolicy      *EndPolicy
	Marks          []*float64
	HasMarks       bool
}

// SyncStateStore reads and writes PersistedSyncState through a KVStore.
type SyncStateStore struct {
	kv KVStore
}

// NewSyncStateStore returns a store writing through kv.
func NewSyncStateStore(kv KVStore) *SyncStateStore {
	return &SyncStateStore{kv: kv}
}

// Save writes state to slot.
func (s *SyncStateStore) Save(slot Slot, state PersistedSyncState) error {
	key, err := slot.Key()
	if err != nil {
		return err
	}
	if state.Marks == nil {
		state.Marks = []*float64{}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistenceWriteFailed, err)
	}
	if err := s.kv.Set(key, string(b)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersistenceWriteFailed, slot, err)
	}
	return nil
}

// Load reads slot. found is false when the slot is empty. A payload that is
// not a JSON object yields ErrPersistenceCorrupt.
func (s *SyncStateStore) Load(slot Slot) (state LoadedSyncState, found bool, err error) {
	key, err := slot.Key()
	if err != nil {
		return LoadedSyncState{}, false, err
	}
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return LoadedSyncState{}, false, fmt.Errorf("read %s: %w", slot, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return LoadedSyncState{}, false, nil
	}
	state, err = decodeSyncState([]byte(raw))
	if err != nil {
		return LoadedSyncState{}, false, err
	}
	return state, true, nil
}

// Clear removes both slots. Both removals are attempted.
func (s *SyncStateStore) Clear() error {
	return errors.Join(s.kv.Remove(manualKey), s.kv.Remove(autosaveKey))
}

func decodeSyncState(b []byte) (LoadedSyncState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return LoadedSyncState{}, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	if fields == nil {
		return LoadedSyncState{}, fmt.Errorf("%w: payload is null", ErrPersistenceCorrupt)
	}

	var out LoadedSyncState

	if raw, ok := fields["referenceIndex"]; ok {
		var f float64
		if json.Unmarshal(raw, &f) == nil && f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			idx := int(f)
			out.ReferenceIndex = &idx
		}
	}

	if raw, ok := fields["endPolicy"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if p, err := ParseEndPolicy(s); err == nil {
				out.EndPolicy = &p
			}
		}
	}

	if raw, ok := fields["marks"]; ok {
		var marks []*float64
		if json.Unmarshal(raw, &marks) == nil && marks != nil {
			out.Marks = marks
			out.HasMarks = true
		}
	}

	return out, nil
}
