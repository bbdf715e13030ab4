package supervision

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// reloadPulse is how long the reload flag stays raised so subscribers
// polling the watcher observe the edge.
const reloadPulse = 100 * time.Millisecond

// SignalWatcher translates POSIX signals into watchable shutdown and reload
// events: SIGTERM/SIGINT flip the shutdown channel, SIGHUP pulses reload.
type SignalWatcher struct {
	log zerolog.Logger

	mu       sync.RWMutex
	shutdown chan struct{}
	reload   chan struct{}
	reloadUp bool

	signals chan os.Signal
	done    chan struct{}
}

// NewSignalWatcher installs the signal handlers and starts watching.
func NewSignalWatcher(log zerolog.Logger) *SignalWatcher {
	w := &SignalWatcher{
		log:      log.With().Str("component", "signals").Logger(),
		shutdown: make(chan struct{}),
		reload:   make(chan struct{}, 1),
		signals:  make(chan os.Signal, 4),
		done:     make(chan struct{}),
	}

	signal.Notify(w.signals, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go w.watch()
	return w
}

// Shutdown returns a channel closed when a termination signal arrives.
func (w *SignalWatcher) Shutdown() <-chan struct{} { return w.shutdown }

// Reload returns a channel receiving a value per SIGHUP. A SIGHUP that
// arrives while a value is still unread is coalesced into it.
func (w *SignalWatcher) Reload() <-chan struct{} { return w.reload }

// ReloadRequested reports whether a reload pulse is currently raised.
func (w *SignalWatcher) ReloadRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reloadUp
}

// Stop uninstalls the handlers and ends the watch loop.
func (w *SignalWatcher) Stop() {
	signal.Stop(w.signals)
	close(w.done)
}

func (w *SignalWatcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case sig := <-w.signals:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				w.log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
				select {
				case <-w.shutdown:
				default:
					close(w.shutdown)
				}
			case syscall.SIGHUP:
				w.log.Info().Msg("reload signal received")
				w.pulseReload()
			}
		}
	}
}

// pulseReload raises the reload flag, notifies subscribers, and lowers the
// flag after the pulse window so edge observers see the transition.
func (w *SignalWatcher) pulseReload() {
	w.mu.Lock()
	w.reloadUp = true
	w.mu.Unlock()

	select {
	case w.reload <- struct{}{}:
	default:
	}

	time.AfterFunc(reloadPulse, func() {
		w.mu.Lock()
		w.reloadUp = false
		w.mu.Unlock()
	})
}
