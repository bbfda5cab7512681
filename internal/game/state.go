// Package game holds the shared phrase hat and the snapshots handed out to
// streaming clients.
package game

import (
	"slices"
	"sync"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Snapshot is an immutable copy of the hat at a given version.
type Snapshot struct {
	Version uint64
	Hat     []string
}

// Clone returns a snapshot that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Version: s.Version, Hat: slices.Clone(s.Hat)}
}

// WriteToJSONWriter encodes the snapshot as {"hat":[...]}. The version is not
// part of the payload; transports carry it out of band.
func (s Snapshot) WriteToJSONWriter(w *jwriter.Writer) {
	obj := w.Object()
	arr := obj.Name("hat").Array()
	for _, phrase := range s.Hat {
		arr.String(phrase)
	}
	arr.End()
	obj.End()
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return jwriter.MarshalJSONWithWriter(s)
}

// State is the process-wide hat. All access goes through its mutex so a batch
// of phrases is always observed as a whole.
type State struct {
	mu      sync.Mutex
	hat     []string
	version uint64
}

// NewState returns an empty hat.
func NewState() *State {
	return &State{}
}

// Append adds phrases to the end of the hat in order and returns the resulting
// snapshot. Empty and duplicate phrases are kept as-is.
func (s *State) Append(phrases []string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hat = append(s.hat, phrases...)
	s.version++
	return s.snapshotLocked()
}

// Snapshot returns a copy of the current hat.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len reports how many phrases are in the hat.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hat)
}

func (s *State) snapshotLocked() Snapshot {
	hat := make([]string, len(s.hat))
	copy(hat, s.hat)
	return Snapshot{Version: s.version, Hat: hat}
}
