package service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/repository"
	"github.com/limbo/cadence/pkg/entity"
)

type EventsService struct {
	repo      repository.EventsRepositoryI
	snapshots SnapshotManagerI
	parser    TimeParserI
	locks     *UserLocks
}

func NewEventsService(eventsRepo repository.EventsRepositoryI, snapshots SnapshotManagerI, parser TimeParserI, locks *UserLocks) *EventsService {
	if eventsRepo == nil || snapshots == nil || locks == nil {
		log.Fatal("on events service provided nil dependencies")
	}
	return &EventsService{
		repo:      eventsRepo,
		snapshots: snapshots,
		parser:    parser,
		locks:     locks,
	}
}

// resolveTimeHint asks the external parser to turn a free-text hint into an
// absolute interval. Only consulted when the caller gave no explicit times.
func (es *EventsService) resolveTimeHint(req *CreateEventRequest) {
	if es.parser == nil || req.TimeHint == "" || req.StartTime != nil || req.EndTime != nil {
		return
	}
	loc := time.UTC
	if req.Timezone != "" {
		if parsed, err := time.LoadLocation(req.Timezone); err == nil {
			loc = parsed
		}
	}
	iv, confidence, err := es.parser.Parse(req.TimeHint, time.Now(), loc)
	if err != nil {
		slog.Debug("time hint not resolved", slog.String("hint", req.TimeHint), slog.String("error", err.Error()))
		return
	}
	if confidence > 0 && iv.Valid() {
		start, end := iv.Start, iv.End
		req.StartTime = &start
		req.EndTime = &end
	}
}

func classifyEventType(req *CreateEventRequest) entity.EventType {
	if req.EventType != "" {
		return req.EventType
	}
	switch {
	case req.StartTime != nil && req.EndTime != nil:
		return entity.EventSchedule
	case req.StartTime == nil && req.EndTime != nil:
		return entity.EventDeadline
	default:
		return entity.EventFloating
	}
}

// validateTimes enforces the time/duration invariant: an event needs a start,
// an end, or a duration-bearing floating task; a present range must be
// positive.
func validateTimes(start, end *time.Time, duration *int) error {
	if start != nil && end != nil && !end.After(*start) {
		return errorvalues.ErrInvalidTimeRange
	}
	if start == nil && end == nil && duration == nil {
		return errorvalues.ErrInvalidTimeRange
	}
	return nil
}

func (es *EventsService) CreateEvent(ctx context.Context, uid uuid.UUID, req *CreateEventRequest) (*EventResult, error) {
	if err := validate.Struct(*req); err != nil {
		if validationError, ok := err.(validator.ValidationErrors); ok {
			err = errors.New("validation error: ")
			for _, fieldErr := range validationError {
				err = errors.Join(err, fieldErr)
			}
			return nil, err
		}
		return nil, errors.New("validation unexpected error: " + err.Error())
	}
	unlock := es.locks.Lock(uid)
	defer unlock()

	es.resolveTimeHint(req)
	// An estimate counts as duration-bearing for the floating-task rule.
	anyDuration := req.Duration
	if anyDuration == nil {
		anyDuration = req.EstimatedDuration
	}
	if err := validateTimes(req.StartTime, req.EndTime, anyDuration); err != nil {
		return nil, err
	}

	in := DurationInput{
		Exact:              req.Duration,
		Estimate:           req.EstimatedDuration,
		EstimateConfidence: req.EstimateConfidence,
	}
	// Both bounds present pins the duration exactly, keeping the soft
	// description consistent with the hard range.
	if req.Duration == nil && req.StartTime != nil && req.EndTime != nil {
		minutes := int(req.EndTime.Sub(*req.StartTime).Minutes())
		in.Exact = &minutes
	}
	res := resolveDuration(nil, in)

	now := time.Now().UTC()
	duration := res.Duration
	event := &entity.Event{
		ID:                 uuid.New(),
		UserID:             uid,
		Title:              req.Title,
		Description:        req.Description,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		Duration:           &duration,
		DurationSource:     res.Source,
		DurationConfidence: res.Confidence,
		AIOriginalEstimate: res.AIOriginal,
		EventType:          classifyEventType(req),
		Category:           req.Category,
		Tags:               req.Tags,
		Location:           req.Location,
		Urgency:            req.Urgency,
		Importance:         req.Importance,
		EnergyRequired:     req.EnergyRequired,
		Status:             entity.StatusPending,
		ParentRoutineID:    req.ParentRoutineID,
		CreatedBy:          req.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if event.Category == "" {
		event.Category = entity.CategoryWork
	}
	if event.EnergyRequired == "" {
		event.EnergyRequired = entity.EnergyMedium
	}
	if event.CreatedBy == "" {
		event.CreatedBy = "user"
	}

	conflicts, window, err := es.conflictsFor(ctx, uid, event, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if req.RequireConflictFree {
			return &EventResult{Conflicts: conflicts}, errorvalues.ErrConflictsPresent
		}
		if event.EventType == entity.EventSchedule && !req.AcknowledgeConflicts &&
			hasScheduleOverlap(conflicts, window) {
			return &EventResult{Conflicts: conflicts}, errorvalues.ErrScheduleOverlap
		}
	}

	if err := es.repo.Create(ctx, event); err != nil {
		return nil, errors.New("events repository error: " + err.Error())
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "create event: " + event.Title
	}
	after := *event
	_, err = es.snapshots.Capture(ctx, uid, trigger, []entity.EventChange{
		{EventID: event.ID, Action: entity.ActionCreate, After: &after},
	})
	if err != nil {
		// The unit of work fails as a whole: take the event back out.
		if delErr := es.repo.Delete(ctx, event.ID); delErr != nil {
			return nil, errors.Join(errors.New("snapshot capture error: "+err.Error()), delErr)
		}
		return nil, errors.New("snapshot capture error: " + err.Error())
	}
	return &EventResult{Event: event, Conflicts: conflicts}, nil
}

func (es *EventsService) windowEvents(ctx context.Context, uid uuid.UUID, event *entity.Event) ([]*entity.Event, error) {
	iv, ok := event.EffectiveInterval()
	if !ok {
		return nil, nil
	}
	existing, err := es.repo.GetOpenInWindow(ctx, uid, iv.Start, iv.End)
	if err != nil {
		return nil, errors.New("events repository error: " + err.Error())
	}
	return existing, nil
}

// conflictsFor runs the detector for the event's effective interval against
// the user's open events, excluding the event itself on updates. It also
// returns the filtered window so callers can classify overlaps without
// querying the same interval twice.
func (es *EventsService) conflictsFor(ctx context.Context, uid uuid.UUID, event *entity.Event, exclude uuid.UUID) ([]entity.Overlap, []*entity.Event, error) {
	iv, ok := event.EffectiveInterval()
	if !ok {
		return nil, nil, nil
	}
	existing, err := es.windowEvents(ctx, uid, event)
	if err != nil {
		return nil, nil, err
	}
	filtered := make([]*entity.Event, 0, len(existing))
	for _, e := range existing {
		if e.ID != exclude && e.ID != event.ID {
			filtered = append(filtered, e)
		}
	}
	return findConflicts(iv, filtered), filtered, nil
}

func (es *EventsService) UpdateEvent(ctx context.Context, eventID, uid uuid.UUID, req *UpdateEventRequest) (*EventResult, error) {
	unlock := es.locks.Lock(uid)
	defer unlock()

	event, err := es.getOwned(ctx, eventID, uid)
	if err != nil {
		return nil, err
	}
	before := *event

	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.ClearTimes {
		event.StartTime = nil
		event.EndTime = nil
	}
	if req.StartTime != nil {
		event.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		event.EndTime = req.EndTime
	}
	if req.EventType != nil {
		event.EventType = *req.EventType
	}
	if req.Category != nil {
		event.Category = *req.Category
	}
	if req.Tags != nil {
		event.Tags = req.Tags
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Urgency != nil {
		event.Urgency = *req.Urgency
	}
	if req.Importance != nil {
		event.Importance = *req.Importance
	}
	if req.EnergyRequired != nil {
		event.EnergyRequired = *req.EnergyRequired
	}

	in := DurationInput{Exact: req.Duration}
	timesChanged := req.StartTime != nil || req.EndTime != nil || req.ClearTimes
	if req.Duration == nil && timesChanged && event.StartTime != nil && event.EndTime != nil {
		minutes := int(event.EndTime.Sub(*event.StartTime).Minutes())
		in.Exact = &minutes
	}
	res := resolveDuration(&before, in)
	duration := res.Duration
	event.Duration = &duration
	event.DurationSource = res.Source
	event.DurationConfidence = res.Confidence
	event.AIOriginalEstimate = res.AIOriginal

	if err := validateTimes(event.StartTime, event.EndTime, event.Duration); err != nil {
		return nil, err
	}
	conflicts, _, err := es.conflictsFor(ctx, uid, event, eventID)
	if err != nil {
		return nil, err
	}

	event.UpdatedAt = time.Now().UTC()
	if err := es.repo.Update(ctx, event); err != nil {
		if errors.Is(err, errorvalues.ErrEventNotFound) {
			return nil, err
		}
		return nil, errors.New("events repository error: " + err.Error())
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "update event: " + event.Title
	}
	after := *event
	_, err = es.snapshots.Capture(ctx, uid, trigger, []entity.EventChange{
		{EventID: event.ID, Action: entity.ActionUpdate, Before: &before, After: &after},
	})
	if err != nil {
		if restoreErr := es.repo.Update(ctx, &before); restoreErr != nil {
			return nil, errors.Join(errors.New("snapshot capture error: "+err.Error()), restoreErr)
		}
		return nil, errors.New("snapshot capture error: " + err.Error())
	}
	return &EventResult{Event: event, Conflicts: conflicts}, nil
}

// DeleteEvent marks the event cancelled. Physical removal waits until no
// retained snapshot references the row.
func (es *EventsService) DeleteEvent(ctx context.Context, eventID, uid uuid.UUID, trigger string) error {
	unlock := es.locks.Lock(uid)
	defer unlock()

	event, err := es.getOwned(ctx, eventID, uid)
	if err != nil {
		return err
	}
	if event.Status == entity.StatusCancelled {
		return nil
	}
	before := *event
	event.Status = entity.StatusCancelled
	event.UpdatedAt = time.Now().UTC()
	if err := es.repo.Update(ctx, event); err != nil {
		return errors.New("events repository error: " + err.Error())
	}
	if trigger == "" {
		trigger = "delete event: " + event.Title
	}
	after := *event
	_, err = es.snapshots.Capture(ctx, uid, trigger, []entity.EventChange{
		{EventID: event.ID, Action: entity.ActionDelete, Before: &before, After: &after},
	})
	if err != nil {
		if restoreErr := es.repo.Update(ctx, &before); restoreErr != nil {
			return errors.Join(errors.New("snapshot capture error: "+err.Error()), restoreErr)
		}
		return errors.New("snapshot capture error: " + err.Error())
	}
	return nil
}

// CompleteEvent is allowed from pending or in_progress and idempotent once
// completed. Cancelled is terminal.
func (es *EventsService) CompleteEvent(ctx context.Context, eventID, uid uuid.UUID) (*entity.Event, error) {
	unlock := es.locks.Lock(uid)
	defer unlock()

	event, err := es.getOwned(ctx, eventID, uid)
	if err != nil {
		return nil, err
	}
	switch event.Status {
	case entity.StatusCompleted:
		return event, nil
	case entity.StatusCancelled:
		return nil, errorvalues.ErrInvalidStatus
	}
	before := *event
	event.Status = entity.StatusCompleted
	event.UpdatedAt = time.Now().UTC()
	if err := es.repo.Update(ctx, event); err != nil {
		return nil, errors.New("events repository error: " + err.Error())
	}
	after := *event
	_, err = es.snapshots.Capture(ctx, uid, "complete event: "+event.Title, []entity.EventChange{
		{EventID: event.ID, Action: entity.ActionUpdate, Before: &before, After: &after},
	})
	if err != nil {
		if restoreErr := es.repo.Update(ctx, &before); restoreErr != nil {
			return nil, errors.Join(errors.New("snapshot capture error: "+err.Error()), restoreErr)
		}
		return nil, errors.New("snapshot capture error: " + err.Error())
	}
	return event, nil
}

func (es *EventsService) GetEvent(ctx context.Context, eventID, uid uuid.UUID) (*entity.Event, error) {
	return es.getOwned(ctx, eventID, uid)
}

func (es *EventsService) GetUserEvents(ctx context.Context, uid uuid.UUID, pagination PaginationOpts) ([]*entity.Event, error) {
	events, err := es.repo.GetByUserID(ctx, uid, pagination.Limit, pagination.Offset)
	if err != nil {
		return nil, errors.New("events repository error: " + err.Error())
	}
	return events, nil
}

func (es *EventsService) CheckConflicts(ctx context.Context, uid uuid.UUID, candidate entity.Interval) ([]entity.Overlap, error) {
	if !candidate.Valid() {
		return nil, errorvalues.ErrInvalidTimeRange
	}
	existing, err := es.repo.GetOpenInWindow(ctx, uid, candidate.Start, candidate.End)
	if err != nil {
		return nil, errors.New("events repository error: " + err.Error())
	}
	return findConflicts(candidate, existing), nil
}

func (es *EventsService) getOwned(ctx context.Context, eventID, uid uuid.UUID) (*entity.Event, error) {
	event, err := es.repo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, errorvalues.ErrEventNotFound) {
			return nil, err
		}
		return nil, errors.New("events repository error: " + err.Error())
	}
	if event.UserID != uid {
		return nil, errorvalues.ErrWrongOwner
	}
	return event, nil
}
