package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/catalog"
	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
)

// Discoverer starts discovery sessions. *discovery.Coordinator implements it.
type Discoverer interface {
	Start(ctx context.Context, opts discovery.Options, l discovery.Listener) (*discovery.Session, error)
}

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // Path to certificate file (TLS is off when empty)
	KeyPath  string // Path to private key file
	LogLevel string

	// Defaults are the options a discover request starts from.
	Defaults discovery.Options

	// CatalogSize bounds the resources kept across sessions.
	CatalogSize int
}

// Server exposes discovery sessions over WebSocket
type Server struct {
	config      *Config
	discoverer  Discoverer
	tlsConfig   *tls.Config
	httpServer  *http.Server
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
	catalog     *catalog.Table
	baseCtx     context.Context
	stop        context.CancelFunc
	log         *zap.Logger
}

// New creates a new Server instance
func New(config *Config, d Discoverer) (*Server, error) {
	if d == nil {
		return nil, errors.New("server: nil discoverer")
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	table, err := catalog.New(config.CatalogSize)
	if err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		config:      config,
		discoverer:  d,
		tlsConfig:   tlsConfig,
		activeConns: make(map[string]*websocket.Conn),
		catalog:     table,
		baseCtx:     ctx,
		stop:        stop,
		log:         logging.Named("server"),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s, nil
}

// Handler returns the HTTP routes: /ws, /resources and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/resources", s.handleResources)
	mux.HandleFunc("/healthz", s.handleHealth)
	return logRequests(mux)
}

// Catalog returns the resources collected by every completed session.
func (s *Server) Catalog() *catalog.Table {
	return s.catalog
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	logging.Info("Starting discovery server",
		zap.String("addr", addr),
		zap.Bool("tls", s.tlsConfig != nil),
		zap.String("log_level", s.config.LogLevel),
	)
	if s.tlsConfig != nil {
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	logging.Info("Server listening for connections", zap.String("addr", l.Addr().String()))

	var err error
	if s.tlsConfig != nil {
		err = s.httpServer.ServeTLS(l, "", "")
	} else {
		err = s.httpServer.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) track(addr string, conn *websocket.Conn) {
	s.mu.Lock()
	s.activeConns[addr] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(addr string) {
	s.mu.Lock()
	delete(s.activeConns, addr)
	s.mu.Unlock()
}

// Shutdown gracefully shuts down the server. Running sessions are
// cancelled and their clients receive the terminal event before the
// connection is closed.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	// Hijacked WebSocket connections are not tracked by http.Server
	s.stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("Error closing listener", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		s.mu.Lock()
		for addr, conn := range s.activeConns {
			logging.Info("Closing active connection", zap.String("remote_addr", addr))
			_ = conn.Close()
		}
		s.mu.Unlock()
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
