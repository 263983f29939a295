package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/sjawhar/callscribe/internal/calls"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
)

var callIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)

const maxBodyBytes = 1 << 20

type CallService interface {
	GetSummary(ctx context.Context, callID string) (calls.Summary, error)
	Promotions(ctx context.Context, callID string) (session.Promotions, error)
	Save(ctx context.Context, req calls.SaveRequest) (calls.SaveResult, error)
	Health(ctx context.Context) calls.Health
	Interactions(ctx context.Context, customerID int64, limit int) ([]storage.Interaction, error)
}

func registerAPIRoutes(mux *http.ServeMux, svc CallService, logger *slog.Logger) {
	mux.HandleFunc("GET /summary/{call_id}", func(w http.ResponseWriter, r *http.Request) {
		callID := r.PathValue("call_id")
		if !validCallID(callID) {
			writeJSONError(w, http.StatusBadRequest, "invalid call id")
			return
		}

		summary, err := svc.GetSummary(r.Context(), callID)
		if err != nil {
			if errors.Is(err, calls.ErrNotFound) {
				writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no summary found for call %s", callID))
				return
			}
			writeInternalError(w, logger, "get summary", callID, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	mux.HandleFunc("GET /promotions/{call_id}", func(w http.ResponseWriter, r *http.Request) {
		callID := r.PathValue("call_id")
		if !validCallID(callID) {
			writeJSONError(w, http.StatusBadRequest, "invalid call id")
			return
		}

		promos, err := svc.Promotions(r.Context(), callID)
		if err != nil {
			writeInternalError(w, logger, "get promotions", callID, err)
			return
		}
		writeJSON(w, http.StatusOK, promos)
	})

	mux.HandleFunc("POST /save_summary", func(w http.ResponseWriter, r *http.Request) {
		var req calls.SaveRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !validCallID(req.CallID) {
			writeJSONError(w, http.StatusBadRequest, "invalid call id")
			return
		}

		res, err := svc.Save(r.Context(), req)
		if err != nil {
			if errors.Is(err, calls.ErrInvalidRequest) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeInternalError(w, logger, "save summary", req.CallID, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health(r.Context()))
	})

	mux.HandleFunc("GET /customers/{id}/interactions", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid customer id")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		list, err := svc.Interactions(r.Context(), id, limit)
		if err != nil {
			writeInternalError(w, logger, "list interactions", strconv.FormatInt(id, 10), err)
			return
		}
		if list == nil {
			list = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, list)
	})
}

func validCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeInternalError keeps error details in the logs.
func writeInternalError(w http.ResponseWriter, logger *slog.Logger, op, subject string, err error) {
	logger.Error(op+" failed", "subject", subject, "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}
