// Package socket serves the framed request/response protocol over a Unix
// domain socket.
package socket

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/service/notification"
	"nextmeeting_server/core/service/state"
	"nextmeeting_server/pkg/apperr"
	"nextmeeting_server/pkg/protocol"
)

// EventMutator applies a mutation through the owning provider.
type EventMutator func(ctx context.Context, provider, calendarID, eventID string, action domain.MutationAction) error

// RequestHandler routes one request to the server state, the scheduler, the
// notification engine, or the event mutator, and produces the response.
type RequestHandler struct {
	state      *state.ServerState
	engine     *notification.Engine
	mutator    EventMutator
	onShutdown func()
	log        zerolog.Logger
}

// NewRequestHandler creates a handler. engine, mutator, and onShutdown may
// be nil for reduced deployments and tests.
func NewRequestHandler(st *state.ServerState, engine *notification.Engine, mutator EventMutator, onShutdown func(), log zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		state:      st,
		engine:     engine,
		mutator:    mutator,
		onShutdown: onShutdown,
		log:        log.With().Str("component", "handler").Logger(),
	}
}

// Handle processes one request.
func (h *RequestHandler) Handle(ctx context.Context, req *protocol.Request) protocol.Response {
	if h.state.ShutdownRequested() && req.Type != protocol.RequestPing {
		return protocol.NewError(protocol.ErrShuttingDown, "server is shutting down")
	}

	switch req.Type {
	case protocol.RequestPing:
		return protocol.NewPong()

	case protocol.RequestStatus:
		return h.state.StatusResponse()

	case protocol.RequestGetMeetings:
		meetings := h.state.Meetings(req.Filter, time.Now())
		h.log.Debug().Int("count", len(meetings)).Msg("returning meetings")
		return protocol.NewMeetings(meetings)

	case protocol.RequestRefresh:
		// Copy the handle out under the read lock; command it lock-free.
		scheduler := h.state.Scheduler()
		if scheduler == nil {
			h.log.Debug().Msg("no scheduler handle, refresh is a no-op")
			return protocol.NewOk()
		}
		if err := scheduler.Refresh(req.Force); err != nil {
			h.log.Warn().Err(err).Msg("failed to command scheduler refresh")
			return protocol.NewError(protocol.ErrInternalError, "failed to trigger refresh: "+err.Error())
		}
		return protocol.NewOk()

	case protocol.RequestSnooze:
		// The engine owns snooze; touch it only after any ServerState lock
		// is released (Meetings/StatusResponse never hold one here).
		if h.engine != nil {
			h.engine.Snooze(req.Minutes, time.Now())
		}
		return protocol.NewOk()

	case protocol.RequestMutateEvent:
		if req.Provider == "" || req.EventID == "" {
			return protocol.NewError(protocol.ErrInvalidRequest, "mutate_event requires provider and event_id")
		}
		if req.Action != domain.MutationDecline && req.Action != domain.MutationDelete {
			return protocol.NewError(protocol.ErrInvalidRequest, "unknown mutation action")
		}
		if h.mutator == nil {
			return protocol.NewError(protocol.ErrProviderError, "event mutation is not configured on this server")
		}
		if err := h.mutator(ctx, req.Provider, req.CalendarID, req.EventID, req.Action); err != nil {
			return MapError(err)
		}
		return protocol.NewOk()

	case protocol.RequestShutdown:
		h.log.Info().Msg("shutdown requested by client")
		h.state.RequestShutdown()
		if h.onShutdown != nil {
			h.onShutdown()
		}
		return protocol.NewOk()

	default:
		return protocol.NewError(protocol.ErrInvalidRequest, "unknown request type: "+req.Type)
	}
}

// MapError converts an internal error into the protocol error taxonomy.
// Provider categories are forwarded; transport-level failures collapse to
// provider_error; everything else becomes internal_error.
func MapError(err error) protocol.Response {
	appErr := apperr.AsAppError(err)
	switch appErr.Code {
	case apperr.CodeAuthenticationFailed, apperr.CodeAuthorizationFailed:
		return protocol.NewError(protocol.ErrAuthenticationFailed, appErr.Message)
	case apperr.CodeNotFound:
		return protocol.NewError(protocol.ErrNotFound, appErr.Message)
	case apperr.CodeRateLimited:
		return protocol.NewError(protocol.ErrRateLimited, appErr.Message)
	case apperr.CodeTimeout:
		return protocol.NewError(protocol.ErrTimeout, appErr.Message)
	case apperr.CodeBadRequest:
		return protocol.NewError(protocol.ErrInvalidRequest, appErr.Message)
	case apperr.CodeNetworkError, apperr.CodeServerError, apperr.CodeInvalidResponse, apperr.CodeCalendarError:
		return protocol.NewError(protocol.ErrProviderError, appErr.Message)
	default:
		return protocol.NewError(protocol.ErrInternalError, appErr.Message)
	}
}
