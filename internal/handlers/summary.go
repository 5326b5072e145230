package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"retailqa/internal/logging"
)

// Summarizer produces the dataset executive summary.
type Summarizer interface {
	Summarize(ctx context.Context) (string, error)
}

type SummaryHandler struct {
	summarizer Summarizer
	log        *slog.Logger
}

func NewSummaryHandler(s Summarizer, log *slog.Logger) *SummaryHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &SummaryHandler{summarizer: s, log: log}
}

type SummaryResponse struct {
	Summary string `json:"summary"`
	// Degraded is set when the oracle failed and Summary holds only the raw sections.
	Degraded bool `json:"degraded,omitempty"`
}

func (h *SummaryHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	text, err := h.summarizer.Summarize(ctx)
	if err != nil {
		if strings.TrimSpace(text) == "" {
			h.log.Error("summary failed", "error", err)
			return jsonErr(http.StatusInternalServerError, "summary_failed", err), nil
		}
		h.log.Warn("summary degraded", "error", err)
		return jsonOK(SummaryResponse{Summary: text, Degraded: true}), nil
	}
	return jsonOK(SummaryResponse{Summary: text}), nil
}
