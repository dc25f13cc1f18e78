package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/caire-health/triage-engine/internal/app"
	"github.com/caire-health/triage-engine/internal/transport/treedto"
)

type Handler struct {
	svc app.TreeService
}

func NewHandler(svc app.TreeService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var in treedto.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
		return
	}

	report, info, err := h.svc.Validate(string(in.Tree))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validate failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, treedto.ValidateResponse{Valid: report.Valid, Errors: report.Errors, Tree: info})
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var in treedto.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
		return
	}

	result, info, err := h.svc.EvaluateCase(string(in.Tree), in.CaseSpec())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": "evaluate failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, treedto.EvaluateResponse{Result: result, Tree: info})
}

func (h *Handler) RunSuite(w http.ResponseWriter, r *http.Request) {
	var in treedto.RunSuiteRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
		return
	}

	suite, info, err := h.svc.RunSuite(r.Context(), string(in.Tree), in.Cases, in.PreviousResult)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": "suite run failed", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, treedto.RunSuiteResponse{Suite: suite, Tree: info})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor keeps the engine's contract: an invalid tree is the caller's
// problem, reported as 422 with the summary in details.
func statusFor(err error) int {
	if errors.Is(err, app.ErrInvalidTree) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
