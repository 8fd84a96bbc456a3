// Package server exposes a memory Coordinator to remote crews: a websocket
// request/response endpoint and a gRPC health service reporting each tier.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mshafei721/ADOS-sub001/memory"
)

// Health service names.
const (
	HealthService        = "memory"
	HealthServiceCrew    = "memory.crew"
	HealthServiceSession = "memory.session"
	HealthServiceVector  = "memory.vector"
)

type handlerFunc func(ctx context.Context, req Request) Response

// Server serves one Coordinator.
type Server struct {
	coord    *memory.Coordinator
	logger   *log.Logger
	upgrader websocket.Upgrader
	health   *health.Server
	handlers map[string]handlerFunc

	healthInterval time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithHealthInterval sets how often tier health is refreshed while serving.
func WithHealthInterval(d time.Duration) Option {
	return func(s *Server) {
		s.healthInterval = d
	}
}

// New creates a Server for coord. Health starts NOT_SERVING until RefreshHealth.
func New(coord *memory.Coordinator, opts ...Option) *Server {
	s := &Server{
		coord:          coord,
		logger:         log.Default().WithPrefix("server"),
		health:         health.NewServer(),
		healthInterval: 15 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handlers = map[string]handlerFunc{
		OpWrite:  s.handleWrite,
		OpRead:   s.handleRead,
		OpStatus: s.handleStatus,
		OpSync:   s.handleSync,
	}
	for _, name := range []string{HealthService, HealthServiceCrew, HealthServiceSession, HealthServiceVector} {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Handler returns the HTTP routes: /ws for the websocket and /status for a
// JSON status snapshot.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/status", s.serveStatus)
	return mux
}

// HealthServer returns the gRPC health implementation.
func (s *Server) HealthServer() *health.Server {
	return s.health
}

// RegisterGRPC registers the health service on g.
func (s *Server) RegisterGRPC(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
}

// RefreshHealth sets every health service from the Coordinator's readiness.
// The overall service is SERVING while any tier is ready.
func (s *Server) RefreshHealth(ctx context.Context) {
	st := s.coord.MemoryStatus(ctx)
	set := func(name string, ok bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			status = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(name, status)
	}
	set(HealthService, st.Initialized && st.Tiers.Any())
	set(HealthServiceCrew, st.Tiers.Crew)
	set(HealthServiceSession, st.Tiers.Session)
	set(HealthServiceVector, st.Tiers.Vector)
}

// Serve listens on httpAddr and grpcAddr until ctx is cancelled. An empty
// address skips that listener.
func (s *Server) Serve(ctx context.Context, httpAddr, grpcAddr string) error {
	// Bind first: nothing has started if this fails.
	var lis net.Listener
	if grpcAddr != "" {
		var err error
		if lis, err = net.Listen("tcp", grpcAddr); err != nil {
			return fmt.Errorf("grpc listen %s: %w", grpcAddr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	s.RefreshHealth(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(s.healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.RefreshHealth(ctx)
			}
		}
	})

	if httpAddr != "" {
		srv := &http.Server{
			Addr:              httpAddr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("http listening", "addr", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if grpcAddr != "" {
		gs := grpc.NewServer()
		s.RegisterGRPC(gs)
		g.Go(func() error {
			s.logger.Info("grpc listening", "addr", grpcAddr)
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.health.Shutdown()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// Handle dispatches one request.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	h, ok := s.handlers[req.Op]
	if !ok {
		return errorResponse(req.ID, fmt.Errorf("unknown op %q", req.Op))
	}
	return h(ctx, req)
}

func (s *Server) handleWrite(ctx context.Context, req Request) Response {
	tier, err := memory.ParseTier(req.Tier)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if err := s.coord.Write(ctx, req.Crew, tier, req.Content); err != nil {
		return errorResponse(req.ID, err)
	}
	return Response{ID: req.ID, OK: true}
}

func (s *Server) handleRead(ctx context.Context, req Request) Response {
	tier, err := memory.ParseTier(req.Tier)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	out, err := s.coord.Read(ctx, req.Crew, tier, req.Query)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return Response{ID: req.ID, OK: true, Result: out}
}

func (s *Server) handleStatus(ctx context.Context, req Request) Response {
	st := s.coord.MemoryStatus(ctx)
	return Response{ID: req.ID, OK: true, Status: &st}
}

func (s *Server) handleSync(ctx context.Context, req Request) Response {
	if err := s.coord.Synchronize(ctx); err != nil {
		return errorResponse(req.ID, err)
	}
	return Response{ID: req.ID, OK: true}
}

// serveWS answers each JSON request on the connection in order.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("websocket connected", "remote", remote)

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if werr := conn.WriteJSON(errorResponse("", fmt.Errorf("malformed request: %w", err))); werr != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "remote", remote, "err", err)
			}
			return
		}

		resp := s.Handle(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Debug("websocket write failed", "remote", remote, "err", err)
			return
		}
	}
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET supported", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.coord.MemoryStatus(r.Context()))
}
