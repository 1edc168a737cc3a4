package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"relaypool/internal/shared/logger"
	"relaypool/internal/shared/types"
)

// basicAuthMiddleware 在配置了 user 和 password 时强制 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	// 如果用户名或密码未设置，则不启用认证，直接返回原始处理器
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewMux wires the API routes. /ws and /api/stats stay public.
func NewMux(cfg types.WebConf, pool PoolController, hub *Hub) *http.ServeMux {
	handler := NewHandler(pool)
	mux := http.NewServeMux()

	mux.HandleFunc("/api/stats", handler.HandleStats)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	mux.Handle("/api/endpoints", basicAuthMiddleware(http.HandlerFunc(handler.HandleEndpoints), cfg.User, cfg.Password))
	mux.Handle("/api/acquire", basicAuthMiddleware(http.HandlerFunc(handler.HandleAcquire), cfg.User, cfg.Password))
	mux.Handle("/api/report", basicAuthMiddleware(http.HandlerFunc(handler.HandleReport), cfg.User, cfg.Password))
	return mux
}

// Server owns the HTTP listener of the daemon.
type Server struct {
	srv *http.Server
}

// StartServer 启动 Web API。port 为 0 时返回 nil, 表示 Web API 被禁用。
func StartServer(wg *sync.WaitGroup, cfg types.WebConf, pool PoolController, hub *Hub) (*Server, error) {
	if cfg.Port <= 0 {
		logger.Info().Msg("Web API is disabled (port is 0 or not set).")
		return nil, nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(cfg, pool, hub),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	logger.Info().Msgf("Web API is listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Web server error")
		}
		logger.Info().Msg("Web server stopped.")
	}()
	return s, nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
