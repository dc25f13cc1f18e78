package lambdatransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/caire-health/triage-engine/internal/app"
	"github.com/caire-health/triage-engine/internal/transport/treedto"
)

type Handler struct {
	svc app.TreeService
}

func NewHandler(svc app.TreeService) *Handler {
	return &Handler{svc: svc}
}

// Handle dispatches on the request path so a single Lambda serves all
// three engine operations.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := readBody(req)
	if err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "invalid body", "details": err.Error()}), nil
	}

	switch {
	case strings.HasSuffix(req.RawPath, "/validate"):
		return h.validate(body), nil
	case strings.HasSuffix(req.RawPath, "/evaluate"):
		return h.evaluate(body), nil
	case strings.HasSuffix(req.RawPath, "/tests/run"):
		return h.runSuite(ctx, body), nil
	default:
		return jsonResp(http.StatusNotFound, map[string]any{"error": "unknown path", "path": req.RawPath}), nil
	}
}

func (h *Handler) validate(body []byte) events.APIGatewayV2HTTPResponse {
	var in treedto.ValidateRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
	}
	report, info, err := h.svc.Validate(string(in.Tree))
	if err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "validate failed", "details": err.Error()})
	}
	return jsonResp(http.StatusOK, treedto.ValidateResponse{Valid: report.Valid, Errors: report.Errors, Tree: info})
}

func (h *Handler) evaluate(body []byte) events.APIGatewayV2HTTPResponse {
	var in treedto.EvaluateRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
	}
	result, info, err := h.svc.EvaluateCase(string(in.Tree), in.CaseSpec())
	if err != nil {
		return jsonResp(statusFor(err), map[string]any{"error": "evaluate failed", "details": err.Error()})
	}
	return jsonResp(http.StatusOK, treedto.EvaluateResponse{Result: result, Tree: info})
}

func (h *Handler) runSuite(ctx context.Context, body []byte) events.APIGatewayV2HTTPResponse {
	var in treedto.RunSuiteRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return jsonResp(http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
	}
	suite, info, err := h.svc.RunSuite(ctx, string(in.Tree), in.Cases, in.PreviousResult)
	if err != nil {
		return jsonResp(statusFor(err), map[string]any{"error": "suite run failed", "details": err.Error()})
	}
	return jsonResp(http.StatusOK, treedto.RunSuiteResponse{Suite: suite, Tree: info})
}

func statusFor(err error) int {
	if errors.Is(err, app.ErrInvalidTree) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func readBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func jsonResp(status int, body any) events.APIGatewayV2HTTPResponse {
	b, _ := json.Marshal(body)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(b),
	}
}
