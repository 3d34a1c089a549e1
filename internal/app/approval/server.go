package approval

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the broker to operators over HTTP.
type Server struct {
	r      *chi.Mux
	broker *Broker
	log    *slog.Logger
}

func NewServer(b *Broker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{r: chi.NewRouter(), broker: b, log: log.With("component", "approval_api")}
	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.Recoverer)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	s.r.Route("/approvals", func(r chi.Router) {
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Post("/{id}/approve", s.approve)
		r.Post("/{id}/reject", s.reject)
	})
}

func (s *Server) Handler() http.Handler { return s.r }

type pendingView struct {
	ID               string    `json:"id"`
	MachineID        string    `json:"machine_id"`
	AgentID          string    `json:"agent_id"`
	Threat           string    `json:"threat"`
	Severity         string    `json:"severity"`
	Summary          string    `json:"summary"`
	Tier             string    `json:"tier"`
	Action           string    `json:"action"`
	ActionDetail     string    `json:"action_detail"`
	RequiresApproval bool      `json:"requires_approval"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

func view(p Pending) pendingView {
	d := p.Decision
	v := pendingView{
		ID:               p.ID,
		AgentID:          d.AgentID,
		Tier:             d.Tier.String(),
		RequiresApproval: d.RequiresApproval,
		SubmittedAt:      p.SubmittedAt,
	}
	if d.Threat != nil {
		v.MachineID = d.Threat.Machine()
		v.Threat = string(d.Threat.Kind())
		v.Severity = d.Threat.Severity().String()
		v.Summary = d.Threat.Summary()
	}
	if d.Action != nil {
		v.Action = string(d.Action.Type())
		v.ActionDetail = d.Action.Describe()
	}
	return v
}

type resolveRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason"`
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	pending := s.broker.Pending()
	out := make([]pendingView, 0, len(pending))
	for _, p := range pending {
		out = append(out, view(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	p, ok := s.broker.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrApprovalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view(p))
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := decodeResolve(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.broker.Approve(r.Context(), id, req.Operator); err != nil {
		if errors.Is(err, ErrApprovalNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.log.Warn("approved action failed", "approval_id", id, "operator", req.Operator, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "approved"})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := decodeResolve(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.broker.Reject(id, req.Operator, req.Reason); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "rejected"})
}

func decodeResolve(r *http.Request) (resolveRequest, error) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	if req.Operator == "" {
		return req, errors.New("operator is required")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
