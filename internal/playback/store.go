package playback

import (
	"sync"
	"time"

	"nowplaying/internal/spotify"
)

// Phase is the synchronization state of a Store.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSeeded
	PhasePollingPlaying
	PhasePollingPaused
)

func (p Phase) String() string {
	switch p {
	case PhaseSeeded:
		return "seeded"
	case PhasePollingPlaying:
		return "polling_playing"
	case PhasePollingPaused:
		return "polling_paused"
	default:
		return "idle"
	}
}

// MarshalText renders the phase name in JSON responses.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a consistent copy of the store taken under its lock.
type State struct {
	Track         *spotify.PlaybackState `json:"track"`
	IsPlaying     bool                   `json:"is_playing"`
	ProgressMs    int                    `json:"progress_ms"`
	DurationMs    int                    `json:"duration_ms"`
	ActiveTrackID string                 `json:"active_track_id,omitempty"`
	Phase         Phase                  `json:"phase"`
}

// Store holds the locally observed playback snapshot for one session. All
// writes are last-write-wins.
type Store struct {
	mu            sync.RWMutex
	current       *spotify.PlaybackState
	isPlaying     bool
	progressMs    int
	activeTrackID string
	polling       bool
}

// NewStore returns an idle store.
func NewStore() *Store {
	return &Store{}
}

// SetCurrentTrack replaces the snapshot and every field derived from it. A
// nil snapshot resets the store to idle.
func (s *Store) SetCurrentTrack(snapshot *spotify.PlaybackState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snapshot == nil {
		s.current = nil
		s.isPlaying = false
		s.progressMs = 0
		s.activeTrackID = ""
		return
	}

	cp := *snapshot
	if snapshot.Item != nil {
		item := *snapshot.Item
		cp.Item = &item
	}
	s.current = &cp
	s.isPlaying = cp.IsPlaying
	s.progressMs = clamp(cp.ProgressMs, s.durationLocked())
	s.activeTrackID = cp.ItemID()
}

// SetIsPlaying updates only the playing flag.
func (s *Store) SetIsPlaying(playing bool) {
	s.mu.Lock()
	s.isPlaying = playing
	s.mu.Unlock()
}

// SetProgressMs overwrites progress, clamped to [0, duration].
func (s *Store) SetProgressMs(ms int) {
	s.mu.Lock()
	s.progressMs = clamp(ms, s.durationLocked())
	s.mu.Unlock()
}

// UpdateProgress advances progress by step while playing. Progress freezes at
// the track duration; without an item the duration is zero.
func (s *Store) UpdateProgress(step time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isPlaying {
		return
	}
	s.progressMs = min(s.progressMs+int(step.Milliseconds()), s.durationLocked())
}

// Phase derives the synchronization phase from the snapshot and scheduler.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phaseLocked()
}

// State returns a copy of the current store contents.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		IsPlaying:     s.isPlaying,
		ProgressMs:    s.progressMs,
		DurationMs:    s.durationLocked(),
		ActiveTrackID: s.activeTrackID,
		Phase:         s.phaseLocked(),
	}
	if s.current != nil {
		cp := *s.current
		cp.IsPlaying = s.isPlaying
		cp.ProgressMs = s.progressMs
		state.Track = &cp
	}
	return state
}

func (s *Store) setPolling(polling bool) {
	s.mu.Lock()
	s.polling = polling
	s.mu.Unlock()
}

func (s *Store) phaseLocked() Phase {
	switch {
	case s.current == nil:
		return PhaseIdle
	case !s.polling:
		return PhaseSeeded
	case s.isPlaying:
		return PhasePollingPlaying
	default:
		return PhasePollingPaused
	}
}

func (s *Store) durationLocked() int {
	if s.current == nil || s.current.Item == nil {
		return 0
	}
	return s.current.Item.DurationMs
}

func clamp(v, upper int) int {
	if v < 0 {
		return 0
	}
	return min(v, upper)
}
