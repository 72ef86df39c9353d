package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"webterm/internal/console"
	"webterm/internal/protocol"
	"webterm/internal/session"
)

type createSessionRequest struct {
	Label string `json:"label"`
}

type executeRequest struct {
	Command string `json:"command"`
}

type sessionResponse struct {
	Session *session.Session             `json:"session"`
	State   protocol.ConsoleStatePayload `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeCodedError answers with the protocol error code matching err.
func writeCodedError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

// errorCode maps controller errors to a protocol error code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, session.ErrMaxSessions):
		return protocol.ErrMaxSessions, http.StatusServiceUnavailable
	case errors.Is(err, console.ErrEmptyInput):
		return protocol.ErrEmptyInput, http.StatusBadRequest
	case errors.Is(err, console.ErrBusy):
		return protocol.ErrBusy, http.StatusConflict
	case errors.Is(err, console.ErrDisconnected):
		return protocol.ErrDisconnected, http.StatusServiceUnavailable
	case errors.Is(err, console.ErrClosed):
		return protocol.ErrSessionTerminated, http.StatusGone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrInvalidMessage, http.StatusRequestTimeout
	default:
		return protocol.ErrInvalidMessage, http.StatusInternalServerError
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := s.sessionMgr.Create(req.Label)
	if err != nil {
		writeCodedError(w, err)
		return
	}

	s.broadcastSessionUpdate(sessionPayload(sess))
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionMgr.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.sessionMgr.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	resp := sessionResponse{Session: sess}
	if ctrl, err := s.sessionMgr.Controller(id); err == nil {
		if state, err := ctrl.Snapshot(); err == nil {
			resp.State = statePayload(id, state, true)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	ctrl, err := s.sessionMgr.Controller(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	entry, err := ctrl.Execute(r.Context(), req.Command)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryPayload(id, entry))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctrl, err := s.sessionMgr.Controller(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Diagnostics())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.sessionMgr.Kill(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if sess, err := s.sessionMgr.Get(id); err == nil {
		s.broadcastSessionUpdate(sessionPayload(sess))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}

// broadcastSessionUpdate sends a session update to all connected clients.
func (s *Server) broadcastSessionUpdate(p protocol.SessionUpdatePayload) {
	msg, err := protocol.NewMessage(protocol.TypeSessionUpdate, p)
	if err != nil {
		return
	}
	s.broadcast(msg)
}
