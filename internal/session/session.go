// Package session holds per-browser-session scan state. Each scan gets one
// Scan value, built up through the request and replaced wholesale by the
// next scan; renderers read it, nothing mutates it after completion. The
// manager also enforces the one-scan-at-a-time rule per session and keeps
// the pending scan captured when the paywall blocks one.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/paywall"
	"github.com/sitemetrics/perfhub/internal/report"
)

// ErrScanInProgress is returned by Begin while the session already has a
// scan running.
var ErrScanInProgress = eris.New("session: a scan is already running")

// Scan is the full state of one scan: what was asked, what came back, and
// what the renderer was given.
type Scan struct {
	ID          string
	URL         string
	Mode        payload.Kind
	AnalyzerKey string
	StartedAt   time.Time
	Access      paywall.AccessState

	Raw    map[string]any
	Parsed *payload.Payload
	View   *report.View
}

// NewScan creates the scan record at request time, before access is known.
func NewScan(url string, mode payload.Kind, startedAt time.Time) *Scan {
	return &Scan{
		ID:          uuid.NewString(),
		URL:         url,
		Mode:        mode,
		AnalyzerKey: mode.AnalyzerKey(),
		StartedAt:   startedAt,
	}
}

// Pending is a paywall-blocked scan kept so a successful payment return can
// re-offer it without the user re-entering the URL.
type Pending struct {
	URL  string
	Mode payload.Kind
}

// Manager tracks scan state per session id.
type Manager struct {
	mu      sync.Mutex
	active  map[string]*Scan
	last    map[string]*Scan
	pending map[string]Pending
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		active:  make(map[string]*Scan),
		last:    make(map[string]*Scan),
		pending: make(map[string]Pending),
	}
}

// Begin registers scan as the session's in-flight scan. Returns
// ErrScanInProgress if one is already running for this session id.
func (m *Manager) Begin(sessionID string, scan *Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.active[sessionID]; running {
		return ErrScanInProgress
	}
	m.active[sessionID] = scan
	return nil
}

// Finish records scan as the session's latest completed scan and releases
// the in-flight slot. The previous scan is dropped entirely.
func (m *Manager) Finish(sessionID string, scan *Scan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, sessionID)
	m.last[sessionID] = scan
}

// Abort releases the in-flight slot without recording a result.
func (m *Manager) Abort(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, sessionID)
}

// Last returns the session's most recent completed scan.
func (m *Manager) Last(sessionID string) (*Scan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.last[sessionID]
	return scan, ok
}

// SetPending captures a paywall-blocked scan for the session.
func (m *Manager) SetPending(sessionID string, p Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[sessionID] = p
}

// TakePending returns and clears the session's pending scan, so one payment
// re-offers one scan.
func (m *Manager) TakePending(sessionID string) (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[sessionID]
	if ok {
		delete(m.pending, sessionID)
	}
	return p, ok
}

// Sweep drops completed scans older than cutoff. Sessions are anonymous and
// unbounded, so the server sweeps periodically to cap memory.
func (m *Manager) Sweep(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, scan := range m.last {
		if scan.StartedAt.Before(cutoff) {
			delete(m.last, id)
			delete(m.pending, id)
			removed++
		}
	}
	return removed
}
