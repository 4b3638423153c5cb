// Package api exposes the printers over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/entity"
	"github.com/schawnndev/receiptprinter/internal/integration"
	"github.com/schawnndev/receiptprinter/internal/printer"
	"github.com/schawnndev/receiptprinter/internal/setup"
)

const maxBody = 1 << 20

// Manager is the part of integration.Manager the server drives
type Manager interface {
	Entries() []config.Entry
	States(id string) ([]entity.State, error)
	Refresh(ctx context.Context, id string) ([]entity.State, error)
	CallService(ctx context.Context, id, service string, data []byte) error
	SetupEntry(ctx context.Context, e config.Entry) error
	Subscribe(buffer int) (<-chan entity.State, func())
}

type Server struct {
	addr     string
	manager  Manager
	newFlow  func() *setup.Flow
	options  *setup.OptionsFlow
	log      *logrus.Entry
	http     *http.Server
	upgrader websocket.Upgrader
	closing  chan struct{}
}

// New returns a server for manager. newFlow starts a setup wizard for
// POST /api/setup; options edits entry options.
func New(addr string, manager Manager, newFlow func() *setup.Flow, options *setup.OptionsFlow, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		addr:    addr,
		manager: manager,
		newFlow: newFlow,
		options: options,
		log:     log.WithField("component", "api"),
		closing: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/printers", s.handlePrinters)
	mux.HandleFunc("POST /api/setup", s.handleSetup)
	mux.HandleFunc("GET /api/printers/{id}/states", s.handleStates)
	mux.HandleFunc("POST /api/printers/{id}/update", s.handleUpdate)
	mux.HandleFunc("GET /api/printers/{id}/options", s.handleGetOptions)
	mux.HandleFunc("PUT /api/printers/{id}/options", s.handlePutOptions)
	mux.HandleFunc("POST /api/printers/{id}/services/{service}", s.handleService)
	mux.HandleFunc("GET /api/ws", s.handleWS)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.http.RegisterOnShutdown(func() { close(s.closing) })
	return s
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is done, then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("http listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"service":  "receipt-printer",
		"printers": len(s.manager.Entries()),
	})
}

type printerInfo struct {
	config.Entry
	Services []string `json:"services"`
}

func (s *Server) handlePrinters(w http.ResponseWriter, _ *http.Request) {
	entries := s.manager.Entries()
	out := make([]printerInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, printerInfo{Entry: e, Services: integration.Services()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "printers": out})
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.manager.States(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "states": states})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	states, err := s.manager.Refresh(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "states": states})
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid body"})
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	if err := s.manager.CallService(r.Context(), r.PathValue("id"), r.PathValue("service"), body); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var in setup.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}

	res, err := s.newFlow().Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Type == setup.ResultCreateEntry {
		if err := s.manager.SetupEntry(r.Context(), *res.Entry); err != nil {
			s.writeError(w, err)
			return
		}
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	res, err := s.options.Start(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePutOptions(w http.ResponseWriter, r *http.Request) {
	var in setup.OptionsInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}

	res, err := s.options.Submit(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Warn("request failed")
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func statusOf(err error) int {
	var (
		perr *printer.Error
		cerr *printer.CommunicationError
	)
	switch {
	case errors.Is(err, integration.ErrNotLoaded),
		errors.Is(err, integration.ErrUnknownService),
		errors.Is(err, config.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, integration.ErrAlreadyLoaded):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
