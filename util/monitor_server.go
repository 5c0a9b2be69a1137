package util

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// MonitorServer serves the browser dashboard. running is held for as long
// as the listener is up.
type MonitorServer struct {
	running *sync.Mutex
	srv     *http.Server
	mux     *http.ServeMux
	port    func() int
	srvMu   sync.RWMutex // protects srv field
}

func NewMonitorServer() *MonitorServer {
	return newMonitorServer(func() int { return Config.GetInt("web_port") })
}

// NewMonitorServerOnPort ignores web_port. Port 0 picks a free port.
func NewMonitorServerOnPort(port int) *MonitorServer {
	return newMonitorServer(func() int { return port })
}

func newMonitorServer(port func() int) *MonitorServer {
	var s MonitorServer
	s.running = &sync.Mutex{}
	s.srv = &http.Server{}
	s.mux = http.NewServeMux()
	s.port = port
	return &s
}

func (s *MonitorServer) Start() error {
	if !s.running.TryLock() {
		return fmt.Errorf("already running")
	}
	newSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port()),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srvMu.Lock()
	s.srv = newSrv
	s.srvMu.Unlock()

	go func() {
		if err := newSrv.ListenAndServe(); err != http.ErrServerClosed {
			Logger.Warn().Msgf("Problem loading monitor server: %v", err)
		}
		Logger.Debug().Msg("monitor server shutdown")
		s.running.Unlock()
	}()
	return nil
}

func (s *MonitorServer) AddHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(path, handler)
}

func (s *MonitorServer) AddRawHandler(path string, handler http.Handler) {
	s.mux.Handle(path, handler)
}

// Handler exposes the routes for httptest.
func (s *MonitorServer) Handler() http.Handler {
	return s.mux
}

// Stop shuts the server down and waits for the listener to exit. It is a
// no-op when the server isn't running.
func (s *MonitorServer) Stop(ctx context.Context) error {
	if s.running.TryLock() {
		s.running.Unlock()
		return nil
	}
	s.srvMu.RLock()
	currentSrv := s.srv
	s.srvMu.RUnlock()

	var err error
	if currentSrv != nil {
		err = currentSrv.Shutdown(ctx)
	}
	Logger.Debug().Msg("waiting for shutdown")
	s.running.Lock() // when server shuts down it will unlock, so wait for unlock
	s.running.Unlock()
	return err
}

func (s *MonitorServer) Restart() {
	Logger.Debug().Msg("restarting monitor server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		Logger.Error().Msgf("Error shutting down monitor server: %v", err)
	}
	Logger.Debug().Msg("http not running - good for startup")
	if err := s.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}
}
