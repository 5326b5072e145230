package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"retailqa/internal/logging"
	"retailqa/internal/nlq"
)

type AskHandler struct {
	asker nlq.Asker
	log   *slog.Logger
}

func NewAskHandler(asker nlq.Asker, log *slog.Logger) *AskHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &AskHandler{asker: asker, log: log}
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer       string `json:"answer"`
	AttemptsUsed int    `json:"attempts_used"`
	Succeeded    bool   `json:"succeeded"`
}

// Handle serves POST /ask. The response carries only the answer text and
// attempt bookkeeping; SQL and raw rows never leave the service.
func (h *AskHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var body AskRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonErr(http.StatusBadRequest, "invalid_json", err), nil
	}
	body.Question = strings.TrimSpace(body.Question)
	if body.Question == "" {
		return jsonErr(http.StatusBadRequest, "question_required", nil), nil
	}

	res, err := h.asker.AskQuestion(ctx, body.Question)
	if errors.Is(err, nlq.ErrEmptyQuestion) {
		return jsonErr(http.StatusBadRequest, "question_required", nil), nil
	}
	if err != nil {
		h.log.Error("ask failed", "error", err)
		return jsonErr(http.StatusInternalServerError, "ask_failed", err), nil
	}

	return jsonOK(AskResponse{
		Answer:       res.AnswerText,
		AttemptsUsed: res.AttemptsUsed,
		Succeeded:    res.Succeeded,
	}), nil
}

func jsonOK(v any) events.APIGatewayV2HTTPResponse {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}
}

func jsonErr(status int, msg string, err error) events.APIGatewayV2HTTPResponse {
	resp := map[string]any{"error": msg}
	if err != nil {
		resp["detail"] = err.Error()
	}
	b, _ := json.Marshal(resp)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}
}
