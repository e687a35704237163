package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/RobotChat/internal/flow"
	"github.com/BTreeMap/RobotChat/internal/models"
)

func (s *Server) contactConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.wizard.ContactConfig())
}

func (s *Server) contactSubmitHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ContactSubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.contactSubmitHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingCollectedData.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.contactSubmitHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	ip := clientIP(r)
	res := s.sink.Submit(r.Context(), req.CollectedData, ip)
	resp := models.ContactSubmitResponse{
		Success:   res.Saved,
		Saved:     res.Saved,
		EmailSent: res.EmailSent,
		Message:   res.Message(),
	}
	if !res.Saved {
		slog.Error("Server.contactSubmitHandler: submission not saved", "client_ip", ip, "error", res.Err())
		writeJSONResponse(w, http.StatusInternalServerError, resp)
		return
	}
	slog.Info("Server.contactSubmitHandler: submission stored", "client_ip", ip, "file", res.File, "email_sent", res.EmailSent)
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) contactBotHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ContactBotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.contactBotHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.contactBotHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
	reply, err := s.wizard.Handle(r.Context(), flow.Request{
		SessionID: sessionID,
		Action:    req.Action,
		Message:   req.Message,
		ClientIP:  clientIP(r),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if r.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		slog.Error("Server.contactBotHandler: wizard failed", "session_id", sessionID, "error", err)
		writeJSONResponse(w, status, models.Error("Failed to process message"))
		return
	}

	if reply.SessionID != nil {
		w.Header().Set(SessionHeader, *reply.SessionID)
	}
	slog.Debug("Server.contactBotHandler: reply sent", "session_id", sessionID, "field", reply.Field, "finished", reply.Finished)
	writeJSONResponse(w, http.StatusOK, reply)
}
