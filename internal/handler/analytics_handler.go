package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Analytics: POST /api/v1/analytics/overview
// ============================================================

func overviewHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/analytics/overview")
		defer span.End()

		var req domain.OverviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("scope", string(req.Scope)))

		resp, err := svc.FetchOverview(ctx, SessionFromContext(ctx), req.Scope, req.ResourceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// GET /api/v1/analytics/categories
// ============================================================

func categoriesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/analytics/categories")
		defer span.End()

		session := SessionFromContext(ctx)
		scope, resourceID := subjectQuery(r, session)

		categories, err := svc.Categories(ctx, session, scope, resourceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

// ============================================================
// GET /api/v1/analytics/month-summary
// ============================================================

func monthSummaryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/analytics/month-summary")
		defer span.End()

		session := SessionFromContext(ctx)
		scope, resourceID := subjectQuery(r, session)

		summary, err := svc.MonthSummary(ctx, session, scope, resourceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// GET /api/v1/dashboard
// ============================================================

func dashboardHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/dashboard")
		defer span.End()

		session := SessionFromContext(ctx)
		scope, resourceID := subjectQuery(r, session)

		dash, err := svc.Load(ctx, session, scope, resourceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, dash)
	}
}
