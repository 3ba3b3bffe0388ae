package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ksktechai/livecontext-ai/internal/gateway"
	"github.com/ksktechai/livecontext-ai/internal/persistence"
	"github.com/ksktechai/livecontext-ai/internal/probe"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

const maxChatBody = 64 << 10

type chatRequest struct {
	Question      string `json:"question" validate:"required,max=4000"`
	CorrelationID string `json:"correlationId,omitempty" validate:"omitempty,max=128"`
}

type toolStatusResponse struct {
	Services []probe.Status `json:"services"`
	Schedule string         `json:"schedule,omitempty"`
	NextRun  *time.Time     `json:"nextRun,omitempty"`
	LastRun  *time.Time     `json:"lastRun,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	req.CorrelationID = strings.TrimSpace(req.CorrelationID)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = strings.TrimSpace(r.Header.Get(gateway.CorrelationHeader))
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	result := s.agent.Chat(r.Context(), req.Question, correlationID)
	w.Header().Set(gateway.CorrelationHeader, result.CorrelationID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleToolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.prober == nil {
		writeError(w, http.StatusNotFound, "tool probe is disabled")
		return
	}

	resp := toolStatusResponse{Services: s.prober.Statuses()}
	if info, err := s.prober.Triggers(time.Now()); err == nil {
		resp.Schedule = info.Expression
		resp.NextRun = &info.Next
		if !info.Last.IsZero() {
			resp.LastRun = &info.Last
		}
	} else {
		log.Warn("Failed to compute next probe run: %v", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "chat audit is disabled")
		return
	}

	limit := persistence.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.audit.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
