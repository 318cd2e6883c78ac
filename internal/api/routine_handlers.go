package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/service"
	"github.com/limbo/cadence/pkg/entity"
	"github.com/limbo/cadence/pkg/httputil"
)

type CreateTemplateRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"desc"`
	Category       string            `json:"category"`
	RepeatRule     entity.RepeatRule `json:"repeat_rule"`
	Sequence       []string          `json:"sequence"`
	IsFlexible     bool              `json:"is_flexible"`
	PreferredSlots []entity.TimeSlot `json:"preferred_time_slots"`
	Makeup         string            `json:"makeup_strategy"`
}

type ExecuteInstanceRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

type GetTemplatesResponse struct {
	UserID    string                    `json:"uid"`
	Templates []*entity.RoutineTemplate `json:"templates"`
}

type GetInstancesResponse struct {
	UserID    string                      `json:"uid"`
	From      time.Time                   `json:"from"`
	To        time.Time                   `json:"to"`
	Instances []service.InstanceWithEvent `json:"instances"`
}

func (s *Server) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("create template error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	var req CreateTemplateRequest
	defer r.Body.Close()
	err = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logger.Error("create template error: invalid request body")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	template, err := s.routineService.CreateTemplate(ctx, uid, &service.CreateTemplateRequest{
		Name:           req.Name,
		Description:    req.Description,
		Category:       entity.Category(req.Category),
		RepeatRule:     req.RepeatRule,
		Sequence:       req.Sequence,
		IsFlexible:     req.IsFlexible,
		PreferredSlots: req.PreferredSlots,
		Makeup:         entity.MakeupStrategy(req.Makeup),
	})
	if err != nil {
		if errors.Is(err, errorvalues.ErrInvalidRepeatRule) {
			logger.Error("create template error: malformed repeat rule")
			httputil.WriteErrorResponse(w, http.StatusBadRequest, "malformed repeat rule", nil)
			return
		}
		logger.Error("create template error: service error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error while creating template", nil)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusCreated, template)
	logger.Info("routine template created")
}

func (s *Server) GetTemplates(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get templates error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	templates, err := s.routineService.GetUserTemplates(ctx, uid, activeOnly)
	if err != nil {
		logger.Error("getting templates list error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "error while getting templates list", nil)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, GetTemplatesResponse{
		UserID:    uid.String(),
		Templates: templates,
	})
	logger.Info("templates provided")
}

func (s *Server) GetInstances(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get instances error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	now := time.Now()
	from := now
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			logger.Error("get instances error: invalid from parameter")
			httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid from parameter", nil)
			return
		}
	}
	to := from.AddDate(0, 0, 7)
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			logger.Error("get instances error: invalid to parameter")
			httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid to parameter", nil)
			return
		}
	}
	if !to.After(from) {
		logger.Error("get instances error: invalid period")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "period end must be after start", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	instances, err := s.routineService.GetActiveInstancesForPeriod(ctx, uid, from, to)
	if err != nil {
		logger.Error("getting instances error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "error while getting instances", nil)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, GetInstancesResponse{
		UserID:    uid.String(),
		From:      from,
		To:        to,
		Instances: instances,
	})
	logger.Info("instances provided")
}

func (s *Server) CompleteInstance(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("complete instance error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("complete instance error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid instance id in path value", nil)
		return
	}
	req := decodeExecuteRequest(r)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	execution, err := s.routineService.MarkInstanceCompleted(ctx, id, uid, req.Notes)
	if err != nil {
		writeInstanceError(w, logger, "complete instance", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, execution)
	logger.Info("instance completed")
}

func (s *Server) SkipInstance(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("skip instance error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("skip instance error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid instance id in path value", nil)
		return
	}
	req := decodeExecuteRequest(r)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	execution, err := s.routineService.MarkInstanceSkipped(ctx, id, uid, req.Reason)
	if err != nil {
		writeInstanceError(w, logger, "skip instance", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, execution)
	logger.Info("instance skipped")
}

func (s *Server) GetTemplateStats(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get stats error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("get stats error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid template id in path value", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	stats, err := s.routineService.GetStats(ctx, id, uid)
	if err != nil {
		switch {
		case errors.Is(err, errorvalues.ErrTemplateNotFound), errors.Is(err, errorvalues.ErrWrongOwner):
			logger.Error("get stats error: unexist template")
			httputil.WriteErrorResponse(w, http.StatusNotFound, "template doesn't exist", nil)
		default:
			logger.Error("get stats error: service error", slog.String("error", err.Error()))
			httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error while getting stats", nil)
		}
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, stats)
	logger.Info("stats provided")
}

// decodeExecuteRequest tolerates an empty body, notes and reason are optional.
func decodeExecuteRequest(r *http.Request) ExecuteInstanceRequest {
	var req ExecuteInstanceRequest
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return req
	}
	_ = sonic.ConfigDefault.Unmarshal(body, &req)
	return req
}

func writeInstanceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, errorvalues.ErrInstanceNotFound):
		logger.Error(op + " error: unexist instance")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "instance doesn't exist", nil)
	case errors.Is(err, errorvalues.ErrWrongOwner):
		logger.Error(op + " error: instance has different owner")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "instance doesn't exist", nil)
	case errors.Is(err, errorvalues.ErrInstanceAlreadyExecuted):
		logger.Error(op + " error: instance already executed")
		httputil.WriteErrorResponse(w, http.StatusConflict, "instance already executed", nil)
	default:
		logger.Error(op+" error: service error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error", nil)
	}
}
