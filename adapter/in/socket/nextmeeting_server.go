package socket

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"nextmeeting_server/pkg/protocol"
)

// ErrSocketInUse means another daemon already serves the socket path.
var ErrSocketInUse = errors.New("socket already in use by a live daemon")

// Config for the socket server.
type Config struct {
	// Path of the Unix domain socket.
	Path string
	// MaxConnections bounds simultaneous client connections.
	MaxConnections int
	// ReadTimeout bounds one framed read; it doubles as the per-connection
	// idle timeout.
	ReadTimeout time.Duration
	// WriteTimeout bounds one framed write.
	WriteTimeout time.Duration
}

// DefaultConfig returns standard server tuning. Path must still be set.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 32,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server accepts client connections on a Unix socket and runs one
// request/response loop per connection.
type Server struct {
	config   Config
	handler  *RequestHandler
	listener net.Listener
	sem      *semaphore.Weighted
	log      zerolog.Logger
}

// NewServer binds the socket. A leftover socket file is probed first: a live
// peer yields ErrSocketInUse, a dead one is removed and the path reclaimed.
func NewServer(config Config, handler *RequestHandler, log zerolog.Logger) (*Server, error) {
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultConfig().MaxConnections
	}

	if _, err := os.Stat(config.Path); err == nil {
		conn, dialErr := net.DialTimeout("unix", config.Path, time.Second)
		if dialErr == nil {
			conn.Close()
			return nil, ErrSocketInUse
		}
		log.Info().Str("path", config.Path).Msg("removing stale socket file")
		if err := os.Remove(config.Path); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("unix", config.Path)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:   config,
		handler:  handler,
		listener: listener,
		sem:      semaphore.NewWeighted(int64(config.MaxConnections)),
		log:      log.With().Str("component", "socket").Logger(),
	}, nil
}

// Path returns the bound socket path.
func (s *Server) Path() string { return s.config.Path }

// Run accepts connections until ctx is cancelled, then closes the listener
// and removes the socket file.
func (s *Server) Run(ctx context.Context) error {
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.log.Info().Str("path", s.config.Path).Int("max_connections", s.config.MaxConnections).Msg("socket server listening")

	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil // shutdown
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		go func() {
			defer s.sem.Release(1)
			defer conn.Close()
			s.serveConnection(ctx, conn)
		}()
	}
}

func (s *Server) cleanup() {
	s.listener.Close()
	if err := os.Remove(s.config.Path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Msg("failed to remove socket file")
	}
	s.log.Info().Msg("socket server stopped")
}

// serveConnection runs the per-connection loop: read one framed request,
// dispatch, write one framed response carrying the originating request_id,
// until the peer closes or a timeout elapses. Framing errors terminate this
// connection only.
func (s *Server) serveConnection(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	log := s.log.With().Str("conn_id", connID).Logger()
	log.Debug().Msg("client connected")

	reader := protocol.NewFrameReader(conn)
	writer := protocol.NewFrameWriter(conn)

	for {
		if ctx.Err() != nil {
			return
		}

		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		var envelope protocol.Envelope[json.RawMessage]
		ok, err := reader.ReadMessage(&envelope)
		if err != nil {
			if netErr, isNet := err.(net.Error); isNet && netErr.Timeout() {
				log.Debug().Msg("connection idle timeout")
			} else {
				log.Warn().Err(err).Msg("error reading request")
			}
			return
		}
		if !ok {
			log.Debug().Msg("client disconnected")
			return
		}

		if !envelope.IsCompatible() {
			log.Warn().
				Str("version", envelope.ProtocolVersion).
				Msg("protocol version mismatch, attempting to serve anyway")
		}

		var request protocol.Request
		response := protocol.Response{}
		if err := json.Unmarshal(envelope.Payload, &request); err != nil {
			response = protocol.NewError(protocol.ErrInvalidRequest, "malformed request payload: "+err.Error())
		} else {
			response = s.handler.Handle(ctx, &request)
		}

		if s.config.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		}
		reply := protocol.NewEnvelope(envelope.RequestID, response)
		if err := writer.WriteMessage(&reply); err != nil {
			log.Warn().Err(err).Msg("error writing response")
			return
		}
	}
}
