package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"go.uber.org/zap"
)

//go:embed static
var staticFiles embed.FS

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 365
	maxCommandBytes    = 4 << 10
)

type Loop interface {
	Submitter
	Current() domain.View
}

type Server struct {
	loop        Loop
	client      domain.MarketDataClient
	broadcaster *Broadcaster
	logger      *zap.Logger
	mux         *http.ServeMux
	server      *http.Server
}

func NewServer(addr string, loop Loop, client domain.MarketDataClient, broadcaster *Broadcaster, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		loop:        loop,
		client:      client,
		broadcaster: broadcaster,
		logger:      logger,
		mux:         mux,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.mux.Handle("GET /", http.FileServerFS(static))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.broadcaster.Handler())
	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("POST /api/commands", s.handleCommand)
	s.mux.HandleFunc("GET /api/history/{id}", s.handleHistory)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	view := s.loop.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"offline": view.Offline,
		"clients": s.broadcaster.ClientCount(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.loop.Current())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !sameOrigin(r) {
		s.logger.Warn("cross-origin command rejected", zap.String("origin", r.Header.Get("Origin")))
		writeError(w, http.StatusForbidden, "cross-origin request")
		return
	}
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	cmd, err := decodeCommand(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.loop.Submit(r.Context(), cmd); err != nil {
		s.logger.Warn("command not queued", zap.String("command", cmd.CommandName()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "command not queued")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "command": cmd.CommandName()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	coinID := r.PathValue("id")
	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}
	currency := s.loop.Current().Currency
	if raw := r.URL.Query().Get("currency"); raw != "" {
		code, ok := domain.NormalizeCurrency(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid currency")
			return
		}
		currency = code
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	points, err := s.client.FetchHistory(r.Context(), coinID, currency, days)
	if err != nil {
		s.logger.Warn("history fetch failed", zap.String("coin", coinID), zap.Error(err))
		writeError(w, historyStatus(err), "failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       coinID,
		"currency": currency,
		"days":     days,
		"prices":   points,
	})
}

func historyStatus(err error) int {
	var apiErr *domain.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case domain.IsNetworkError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
