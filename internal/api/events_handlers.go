package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/service"
	"github.com/limbo/cadence/pkg/entity"
	"github.com/limbo/cadence/pkg/httputil"
)

type CreateEventRequest struct {
	Title                string     `json:"title"`
	Description          string     `json:"desc"`
	StartTime            *time.Time `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
	Duration             *int       `json:"duration"`
	EstimatedDuration    *int       `json:"estimated_duration"`
	EstimateConfidence   float64    `json:"estimate_confidence"`
	EventType            string     `json:"event_type"`
	Category             string     `json:"category"`
	Tags                 []string   `json:"tags"`
	Location             string     `json:"location"`
	Urgency              int        `json:"urgency"`
	Importance           int        `json:"importance"`
	EnergyRequired       string     `json:"energy_required"`
	TimeHint             string     `json:"time_hint"`
	Timezone             string     `json:"timezone"`
	AcknowledgeConflicts bool       `json:"acknowledge_conflicts"`
	RequireConflictFree  bool       `json:"require_conflict_free"`
}

type UpdateEventRequest struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"desc"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	ClearTimes     bool       `json:"clear_times"`
	Duration       *int       `json:"duration"`
	EventType      *string    `json:"event_type"`
	Category       *string    `json:"category"`
	Tags           []string   `json:"tags"`
	Location       *string    `json:"location"`
	Urgency        *int       `json:"urgency"`
	Importance     *int       `json:"importance"`
	EnergyRequired *string    `json:"energy_required"`
}

type CheckConflictsRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type GetEventsResponse struct {
	UserID string          `json:"uid"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
	Events []*entity.Event `json:"events"`
}

func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("create event error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	var req CreateEventRequest
	defer r.Body.Close()
	err = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logger.Error("create event error: invalid request body")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	result, err := s.eventsService.CreateEvent(ctx, uid, &service.CreateEventRequest{
		Title:                req.Title,
		Description:          req.Description,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Duration:             req.Duration,
		EstimatedDuration:    req.EstimatedDuration,
		EstimateConfidence:   req.EstimateConfidence,
		EventType:            entity.EventType(req.EventType),
		Category:             entity.Category(req.Category),
		Tags:                 req.Tags,
		Location:             req.Location,
		Urgency:              req.Urgency,
		Importance:           req.Importance,
		EnergyRequired:       entity.EnergyLevel(req.EnergyRequired),
		CreatedBy:            "user",
		TimeHint:             req.TimeHint,
		Timezone:             req.Timezone,
		AcknowledgeConflicts: req.AcknowledgeConflicts,
		RequireConflictFree:  req.RequireConflictFree,
		Trigger:              "create event: " + req.Title,
	})
	if err != nil {
		switch {
		case errors.Is(err, errorvalues.ErrScheduleOverlap), errors.Is(err, errorvalues.ErrConflictsPresent):
			logger.Error("create event error: conflicting schedule")
			httputil.WriteJSONResponse(w, http.StatusConflict, result)
		case errors.Is(err, errorvalues.ErrInvalidTimeRange):
			logger.Error("create event error: invalid time range")
			httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid time range", nil)
		default:
			logger.Error("create event error: service error", slog.String("error", err.Error()))
			httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error while creating event", nil)
		}
		return
	}
	httputil.WriteJSONResponse(w, http.StatusCreated, result)
	logger.Info("event created")
}

func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get events error: unauthorized")
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
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	events, err := s.eventsService.GetUserEvents(ctx, uid, service.PaginationOpts{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		logger.Error("getting events list error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "error while getting events list", nil)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, GetEventsResponse{
		UserID: uid.String(),
		Page:   page,
		Limit:  limit,
		Events: events,
	})
	logger.Info("events provided")
}

func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get event error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("get event error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid event id in path value", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	event, err := s.eventsService.GetEvent(ctx, id, uid)
	if err != nil {
		writeEventError(w, logger, "get event", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, event)
	logger.Info("event provided")
}

func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("update event error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("update event error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid event id in path value", nil)
		return
	}
	var req UpdateEventRequest
	defer r.Body.Close()
	err = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logger.Error("update event error: invalid request body")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	sreq := service.UpdateEventRequest{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		ClearTimes:  req.ClearTimes,
		Duration:    req.Duration,
		Tags:        req.Tags,
		Location:    req.Location,
		Urgency:     req.Urgency,
		Importance:  req.Importance,
		Trigger:     "update event",
	}
	if req.EventType != nil {
		eventType := entity.EventType(*req.EventType)
		sreq.EventType = &eventType
	}
	if req.Category != nil {
		category := entity.Category(*req.Category)
		sreq.Category = &category
	}
	if req.EnergyRequired != nil {
		energy := entity.EnergyLevel(*req.EnergyRequired)
		sreq.EnergyRequired = &energy
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	result, err := s.eventsService.UpdateEvent(ctx, id, uid, &sreq)
	if err != nil {
		if errors.Is(err, errorvalues.ErrInvalidTimeRange) {
			logger.Error("update event error: invalid time range")
			httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid time range", nil)
			return
		}
		writeEventError(w, logger, "update event", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, result)
	logger.Info("event updated")
}

func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("event deletion error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("event deletion error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid event id in path value", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	err = s.eventsService.DeleteEvent(ctx, id, uid, "delete event")
	if err != nil {
		writeEventError(w, logger, "event deletion", err)
		return
	}
	logger.Info("event deleted")
}

func (s *Server) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("complete event error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error("complete event error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid event id in path value", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	event, err := s.eventsService.CompleteEvent(ctx, id, uid)
	if err != nil {
		if errors.Is(err, errorvalues.ErrInvalidStatus) {
			logger.Error("complete event error: status transition not allowed")
			httputil.WriteErrorResponse(w, http.StatusConflict, "event cannot be completed from its current status", nil)
			return
		}
		writeEventError(w, logger, "complete event", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, event)
	logger.Info("event completed")
}

func (s *Server) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("check conflicts error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	var req CheckConflictsRequest
	defer r.Body.Close()
	err = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logger.Error("check conflicts error: invalid request body")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	conflicts, err := s.eventsService.CheckConflicts(ctx, uid, entity.Interval{Start: req.Start, End: req.End})
	if err != nil {
		if errors.Is(err, errorvalues.ErrInvalidTimeRange) {
			logger.Error("check conflicts error: invalid time range")
			httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid time range", nil)
			return
		}
		logger.Error("check conflicts error: service error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error while checking conflicts", nil)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"conflicts": conflicts,
	})
	logger.Info("conflicts checked")
}

func writeEventError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, errorvalues.ErrEventNotFound):
		logger.Error(op + " error: unexist event")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "event doesn't exist", nil)
	case errors.Is(err, errorvalues.ErrWrongOwner):
		logger.Error(op + " error: event has different owner")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "event doesn't exist", nil)
	default:
		logger.Error(op+" error: service error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error", nil)
	}
}
