// Package api provides HTTP handlers for StepFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/StepFlow/internal/flow"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/store"
)

var errUnknownKind = errors.New("unknown flow kind")

// Data actions accepted by POST /flows/{id}/data.
const (
	actionSet      = "set"
	actionSelect   = "select"
	actionDeselect = "deselect"
	actionToggle   = "toggle"
	actionClear    = "clear"
)

// createFlowRequest is the body of POST /flows.
type createFlowRequest struct {
	Kind         models.FlowKind `json:"kind"`
	Mode         models.AuthMode `json:"mode,omitempty"`
	OnboardingID string          `json:"onboarding_id,omitempty"`
}

// dataRequest is the body of POST /flows/{id}/data. Field defaults to the current step's field.
type dataRequest struct {
	Field  string `json:"field,omitempty"`
	Action string `json:"action,omitempty"`
	Value  string `json:"value,omitempty"`
}

// jumpRequest is the body of POST /flows/{id}/jump.
type jumpRequest struct {
	Step string `json:"step"`
}

// definitionView describes a registered flow definition.
type definitionView struct {
	Kind      models.FlowKind `json:"kind"`
	Steps     []models.Step   `json:"steps"`
	Extra     []models.Step   `json:"extra,omitempty"`
	FadeOutMS int64           `json:"fade_out_ms"`
	FadeInMS  int64           `json:"fade_in_ms"`
}

func (s *Server) createFlowHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req createFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createFlowHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidFlowKind(req.Kind) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow kind: "+string(req.Kind)))
		return
	}
	if req.Kind == models.FlowKindAuth {
		if req.Mode == "" {
			req.Mode = models.AuthModeSignup
		}
		if !models.IsValidAuthMode(req.Mode) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown auth mode: "+string(req.Mode)))
			return
		}
	}
	if req.OnboardingID != "" {
		if req.Kind != models.FlowKindAuth {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("onboarding_id is only accepted for auth flows"))
			return
		}
		ob, ok := s.sessions.Get(req.OnboardingID)
		if !ok || ob.Kind != models.FlowKindOnboarding {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown onboarding flow"))
			return
		}
		if _, done := ob.Result().(*flow.OnboardingResult); !done {
			writeJSONResponse(w, http.StatusConflict, models.Error("Onboarding flow is not completed"))
			return
		}
	}

	fs, err := s.newSession(req.Kind, req.Mode, req.OnboardingID)
	if err != nil {
		slog.Error("Server.createFlowHandler: failed to create flow", "error", err, "kind", req.Kind)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create flow"))
		return
	}
	s.sessions.Add(fs)
	slog.Info("Server.createFlowHandler: flow created", "flowID", fs.ID, "kind", fs.Kind, "mode", req.Mode)
	writeFlow(w, http.StatusCreated, fs)
}

// session resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*FlowSession, bool) {
	id := r.PathValue("id")
	fs, ok := s.sessions.Get(id)
	if !ok {
		slog.Warn("Server: unknown flow", "flowID", id, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
		return nil, false
	}
	return fs, true
}

// authSession is session restricted to authentication flows.
func (s *Server) authSession(w http.ResponseWriter, r *http.Request) (*FlowSession, bool) {
	fs, ok := s.session(w, r)
	if !ok {
		return nil, false
	}
	if fs.Auth == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Operation is only available on auth flows"))
		return nil, false
	}
	return fs, true
}

func (s *Server) getFlowHandler(w http.ResponseWriter, r *http.Request) {
	if fs, ok := s.session(w, r); ok {
		writeFlow(w, http.StatusOK, fs)
	}
}

func (s *Server) deleteFlowHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.Remove(id) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Flow not found"))
		return
	}
	slog.Info("Server.deleteFlowHandler: flow closed", "flowID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Flow closed", nil))
}

func (s *Server) dataHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	fs, ok := s.session(w, r)
	if !ok {
		return
	}
	var req dataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.dataHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	field := req.Field
	if field == "" {
		field = fs.Controller.CurrentStep().FieldKey()
	}

	var err error
	switch strings.ToLower(req.Action) {
	case "", actionSet:
		err = fs.Controller.SetText(field, req.Value)
	case actionSelect:
		err = fs.Controller.Select(field, req.Value)
	case actionDeselect:
		err = fs.Controller.Deselect(field, req.Value)
	case actionToggle:
		err = fs.Controller.Toggle(field, req.Value)
	case actionClear:
		err = fs.Controller.ClearField(field)
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown data action: "+req.Action))
		return
	}
	if err != nil {
		writeError(w, "dataHandler", err)
		return
	}
	writeFlow(w, http.StatusOK, fs)
}

func (s *Server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := fs.Controller.Advance(r.Context()); err != nil {
		writeError(w, "advanceHandler", err)
		return
	}
	writeOutcome(w, fs)
}

func (s *Server) backHandler(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := fs.Controller.Back(); err != nil {
		writeError(w, "backHandler", err)
		return
	}
	writeFlow(w, http.StatusOK, fs)
}

func (s *Server) jumpHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	fs, ok := s.session(w, r)
	if !ok {
		return
	}
	var req jumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Step == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("A step id is required"))
		return
	}
	if err := fs.Controller.JumpTo(req.Step); err != nil {
		writeError(w, "jumpHandler", err)
		return
	}
	writeFlow(w, http.StatusOK, fs)
}

func (s *Server) resendHandler(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.authSession(w, r)
	if !ok {
		return
	}
	if err := fs.Auth.Resend(r.Context()); err != nil {
		writeError(w, "resendHandler", err)
		return
	}
	writeOutcome(w, fs)
}

func (s *Server) continueAnywayHandler(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.authSession(w, r)
	if !ok {
		return
	}
	if err := fs.Auth.ContinueAnyway(r.Context()); err != nil {
		writeError(w, "continueAnywayHandler", err)
		return
	}
	writeOutcome(w, fs)
}

func (s *Server) dismissHandler(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.session(w, r)
	if !ok {
		return
	}
	fs.Controller.DismissError()
	writeFlow(w, http.StatusOK, fs)
}

func (s *Server) definitionHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.FlowKind(r.PathValue("kind"))
	def, ok := s.definition(kind)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown flow kind: "+string(kind)))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(definitionView{
		Kind:      def.Kind,
		Steps:     def.Order.Steps(),
		Extra:     def.Extra,
		FadeOutMS: def.FadeOut.Milliseconds(),
		FadeInMS:  def.FadeIn.Milliseconds(),
	}))
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	email := models.NormalizeEmail(r.URL.Query().Get("email"))
	if !models.IsValidEmail(email) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("A valid email query parameter is required"))
		return
	}
	if s.st == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Profile store not configured"))
		return
	}
	p, err := s.st.GetProfileByEmail(r.Context(), email)
	if errors.Is(err, store.ErrProfileNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Profile not found"))
		return
	}
	if err != nil {
		writeError(w, "profileHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"flows": s.sessions.Len()}))
}
