package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/service"
	"github.com/limbo/cadence/pkg/entity"
	"github.com/limbo/cadence/pkg/httputil"
)

type GetSnapshotsResponse struct {
	UserID    string             `json:"uid"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
	Snapshots []*entity.Snapshot `json:"snapshots"`
}

type RevertResponse struct {
	RestoredEvents []uuid.UUID `json:"restored_events"`
}

func (s *Server) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get snapshots error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > 50 {
		limit = 10
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	offset := (page - 1) * limit
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	snapshots, err := s.snapshotManager.List(ctx, uid, service.PaginationOpts{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		logger.Error("getting snapshots list error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "error while getting snapshots list", nil)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, GetSnapshotsResponse{
		UserID:    uid.String(),
		Page:      page,
		Limit:     limit,
		Snapshots: snapshots,
	})
	logger.Info("snapshots provided")
}

func (s *Server) RevertSnapshot(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("revert error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("revert error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid snapshot id in path value", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	restored, err := s.snapshotManager.Revert(ctx, id, uid)
	if err != nil {
		writeSnapshotError(w, logger, "revert", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, RevertResponse{RestoredEvents: restored})
	logger.Info("snapshot reverted")
}

func (s *Server) UndoLast(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("undo error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	restored, err := s.snapshotManager.UndoLast(ctx, uid)
	if err != nil {
		writeSnapshotError(w, logger, "undo", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, RevertResponse{RestoredEvents: restored})
	logger.Info("last snapshot reverted")
}

func writeSnapshotError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, errorvalues.ErrSnapshotNotFound):
		logger.Error(op + " error: unexist snapshot")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "snapshot doesn't exist", nil)
	case errors.Is(err, errorvalues.ErrWrongOwner):
		logger.Error(op + " error: snapshot has different owner")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "snapshot doesn't exist", nil)
	case errors.Is(err, errorvalues.ErrSnapshotAlreadyReverted):
		logger.Error(op + " error: snapshot already reverted")
		httputil.WriteErrorResponse(w, http.StatusConflict, "snapshot already reverted", nil)
	case errors.Is(err, errorvalues.ErrSnapshotExpired):
		logger.Error(op + " error: snapshot expired")
		httputil.WriteErrorResponse(w, http.StatusGone, "snapshot expired", nil)
	case errors.Is(err, errorvalues.ErrRevertFailed):
		logger.Error(op + " error: revert validation failed")
		httputil.WriteErrorResponse(w, http.StatusConflict, "revert failed, no state changed", nil)
	default:
		logger.Error(op+" error: service error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error", nil)
	}
}
