package control

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/logging"
	"github.com/finixos/finix/pkg/service"
	"github.com/finixos/finix/pkg/shutdown"
)

// Server listens on a Unix domain socket and handles finixctl
// connections.
type Server struct {
	engine   *config.Engine
	registry *service.Registry
	sockPath string
	log      *logging.Logger

	listener net.Listener
	conns    map[*Connection]struct{}
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// ReloadFunc runs a configuration reload on behalf of a client.
	ReloadFunc func() error

	// ShutdownFunc is called when a shutdown command arrives.
	ShutdownFunc func(shutdown.Type)
}

// NewServer creates a control server bound to sockPath when started.
func NewServer(engine *config.Engine, registry *service.Registry, sockPath string, log *logging.Logger) *Server {
	return &Server{
		engine:   engine,
		registry: registry,
		sockPath: sockPath,
		log:      log,
		conns:    make(map[*Connection]struct{}),
	}
}

// Start binds the Unix socket and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	// A stale socket from a previous run blocks the bind.
	if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return err
	}

	if err := os.Chmod(s.sockPath, 0600); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("Control socket listening on %s", s.sockPath)
	return nil
}

// Stop closes the listener and all active connections.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	os.Remove(s.sockPath)

	s.log.Info("Control socket stopped")
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Error("Control socket accept error: %v", err)
				continue
			}
		}

		c := newConnection(s, conn)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
	}
}
