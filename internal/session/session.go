package session

import (
	"context"
	"errors"
	"sync"

	"fashionAdvisorAi/internal/events"
	"fashionAdvisorAi/internal/media"
	"fashionAdvisorAi/internal/storage"
	"fashionAdvisorAi/internal/stylist"
)

// ErrNotFound indicates that a session could not be located.
var ErrNotFound = errors.New("session not found")

// ErrBusy indicates that a generate-more request is already running.
var ErrBusy = errors.New("suggestion generation already in progress")

// Phase tracks the top-level session flow.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseAwaiting Phase = "awaiting-suggestions"
	PhaseShown    Phase = "suggestions-shown"
)

const maxSessions = 64

// Session bundles the mutable state of one browser tab: base photo,
// accumulated suggestions, loading flags, and filter text. All fields
// are guarded by the manager while a transition runs.
type Session struct {
	ID string

	photo          stylist.Photo
	photoName      string
	suggestions    []stylist.Suggestion
	phase          Phase
	errMsg         string
	filter         string
	generatingMore bool

	// generation increments whenever the base photo changes or the
	// session resets; render completions carrying an older generation
	// are stale and must not touch the list.
	generation int

	// tasks tracks the cancel handle of each in-flight render, keyed
	// by style name.
	tasks map[string]context.CancelFunc
}

// Manager owns all sessions and applies one transition per user
// intent. Render completions re-enter through the manager so state
// mutation stays single-writer per session.
type Manager struct {
	advisor       stylist.StyleAdvisor
	renderer      stylist.Renderer
	prefs         *storage.Preferences
	broker        *events.Broker
	uploader      media.Uploader
	cancelOnReset bool

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// ManagerConfig bundles the manager's collaborators. Uploader may be
// nil when render archiving is disabled. CancelOnReset aborts in-flight
// renders when the session's photo is replaced or cleared; the default
// (false) lets them finish and discard their stale completions.
type ManagerConfig struct {
	Advisor       stylist.StyleAdvisor
	Renderer      stylist.Renderer
	Preferences   *storage.Preferences
	Broker        *events.Broker
	Uploader      media.Uploader
	CancelOnReset bool
}

// NewManager constructs a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	uploader := cfg.Uploader
	if uploader == nil {
		uploader = media.Disabled()
	}
	return &Manager{
		advisor:       cfg.Advisor,
		renderer:      cfg.Renderer,
		prefs:         cfg.Preferences,
		broker:        cfg.Broker,
		uploader:      uploader,
		cancelOnReset: cfg.CancelOnReset,
		sessions:      make(map[string]*Session),
	}
}

func (m *Manager) get(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// cancelTasks aborts every in-flight render of the session. Callers
// hold the manager lock.
func cancelTasks(s *Session) {
	for name, cancel := range s.tasks {
		cancel()
		delete(s.tasks, name)
	}
}

// retireTasks empties the task registry after a generation bump. With
// cancelOnReset the stale renders are aborted outright; otherwise they
// run to completion and are discarded at the generation check, so only
// their registry entries are dropped here. Callers hold the manager
// lock.
func (m *Manager) retireTasks(s *Session) {
	if m.cancelOnReset {
		cancelTasks(s)
		return
	}
	clear(s.tasks)
}
