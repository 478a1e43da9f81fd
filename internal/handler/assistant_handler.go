package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// POST /api/v1/assistant
// ============================================================

func assistantHandler(svc *service.AssistantService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/assistant")
		defer span.End()

		var req domain.AssistantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Ask(ctx, SessionFromContext(ctx), req.Query)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
