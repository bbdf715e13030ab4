package state

import (
	"sync"
	"time"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/pkg/protocol"
)

// SchedulerHandle is the clone-safe view of the scheduler the request
// handler commands. It must be copied out under a read lock and used
// without holding any ServerState lock.
type SchedulerHandle interface {
	SyncNow() error
	Refresh(force bool) error
	Pause() error
	Resume() error
	Stop() error
	IsPaused() bool
}

// SnoozeView reads the snooze state owned by the notification engine. The
// engine is the single source of truth; ServerState only reads through.
type SnoozeView interface {
	SnoozedUntil() *time.Time
}

// ServerState is the shared state written by the sync task and the request
// handler, and read by every request. Single-writer/many-reader; methods
// holding the write lock never call out to another lock in the system.
type ServerState struct {
	mu sync.RWMutex

	startTime         time.Time
	lastSync          *time.Time
	meetings          []domain.MeetingView
	providers         []protocol.ProviderStatus
	shutdownRequested bool
	scheduler         SchedulerHandle
	snooze            SnoozeView
}

// New creates a fresh server state.
func New() *ServerState {
	return &ServerState{startTime: time.Now()}
}

// Uptime returns how long the server has been running.
func (s *ServerState) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// SetMeetings replaces the cached meetings and stamps the sync time.
func (s *ServerState) SetMeetings(meetings []domain.MeetingView) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings = meetings
	s.lastSync = &now
}

// Meetings returns the cached meetings filtered at now.
func (s *ServerState) Meetings(filter *protocol.MeetingsFilter, now time.Time) []domain.MeetingView {
	s.mu.RLock()
	snapshot := make([]domain.MeetingView, len(s.meetings))
	copy(snapshot, s.meetings)
	s.mu.RUnlock()

	return ApplyFilter(snapshot, filter, now)
}

// SetProviderStatus updates or appends one provider's status.
func (s *ServerState) SetProviderStatus(status protocol.ProviderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.providers {
		if s.providers[i].Name == status.Name {
			s.providers[i] = status
			return
		}
	}
	s.providers = append(s.providers, status)
}

// StatusResponse assembles the status reply. Snooze is read through the
// engine view after releasing the state lock.
func (s *ServerState) StatusResponse() protocol.Response {
	s.mu.RLock()
	uptime := time.Since(s.startTime)
	lastSync := s.lastSync
	providers := make([]protocol.ProviderStatus, len(s.providers))
	copy(providers, s.providers)
	snooze := s.snooze
	s.mu.RUnlock()

	var snoozedUntil *time.Time
	if snooze != nil {
		snoozedUntil = snooze.SnoozedUntil()
	}
	return protocol.NewStatusResponse(uptime, lastSync, snoozedUntil, providers)
}

// RequestShutdown flips the shutdown flag.
func (s *ServerState) RequestShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownRequested = true
}

// ShutdownRequested reports whether a client asked the daemon to exit.
func (s *ServerState) ShutdownRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownRequested
}

// SetSchedulerHandle stores the scheduler handle.
func (s *ServerState) SetSchedulerHandle(handle SchedulerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = handle
}

// Scheduler copies the handle out under the read lock. Callers command the
// scheduler without holding any state lock.
func (s *ServerState) Scheduler() SchedulerHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scheduler
}

// SetSnoozeView wires the notification engine's snooze state.
func (s *ServerState) SetSnoozeView(view SnoozeView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snooze = view
}
