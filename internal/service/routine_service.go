package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/repository"
	"github.com/limbo/cadence/pkg/entity"
)

type RoutineService struct {
	repo   repository.RoutinesRepositoryI
	events EventsServiceI
}

func NewRoutineService(routinesRepo repository.RoutinesRepositoryI, events EventsServiceI) *RoutineService {
	if routinesRepo == nil || events == nil {
		log.Fatal("on routine service provided nil dependencies")
	}
	return &RoutineService{
		repo:   routinesRepo,
		events: events,
	}
}

func (rs *RoutineService) CreateTemplate(ctx context.Context, uid uuid.UUID, req *CreateTemplateRequest) (*entity.RoutineTemplate, error) {
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
	if err := validateRepeatRule(req.RepeatRule); err != nil {
		return nil, err
	}
	makeup := req.Makeup
	switch makeup {
	case "":
		makeup = entity.MakeupSkip
	case entity.MakeupSkip, entity.MakeupCarryOver, entity.MakeupFlexibleReslot:
	default:
		return nil, errorvalues.ErrInvalidRepeatRule
	}
	for _, slot := range req.PreferredSlots {
		if _, _, err := parseClock(slot.Start); err != nil {
			return nil, errorvalues.ErrInvalidRepeatRule
		}
		if _, _, err := parseClock(slot.End); err != nil {
			return nil, errorvalues.ErrInvalidRepeatRule
		}
	}
	now := time.Now().UTC()
	tpl := &entity.RoutineTemplate{
		ID:             uuid.New(),
		UserID:         uid,
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		RepeatRule:     req.RepeatRule,
		Sequence:       req.Sequence,
		IsFlexible:     req.IsFlexible,
		PreferredSlots: req.PreferredSlots,
		Makeup:         makeup,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if tpl.Category == "" {
		tpl.Category = entity.CategoryLife
	}
	if err := rs.repo.CreateTemplate(ctx, tpl); err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	return tpl, nil
}

func (rs *RoutineService) GetUserTemplates(ctx context.Context, uid uuid.UUID, activeOnly bool) ([]*entity.RoutineTemplate, error) {
	templates, err := rs.repo.GetTemplatesByUserID(ctx, uid, activeOnly)
	if err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	return templates, nil
}

// GenerateInstances materializes one instance per period the repeat rule
// expects inside [from, to], in chronological order. Idempotent: periods
// that already hold a regular instance are left alone.
func (rs *RoutineService) GenerateInstances(ctx context.Context, templateID uuid.UUID, from, to time.Time) ([]*entity.RoutineInstance, error) {
	tpl, err := rs.repo.GetTemplateByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, errorvalues.ErrTemplateNotFound) {
			return nil, err
		}
		return nil, errors.New("routines repository error: " + err.Error())
	}
	periods, err := expandPeriods(tpl.RepeatRule, from, to)
	if err != nil {
		return nil, err
	}
	created := make([]*entity.RoutineInstance, 0, len(periods))
	sequenceMoved := false
	for _, period := range periods {
		exists, err := rs.repo.RegularInstanceExists(ctx, tpl.ID, period)
		if err != nil {
			return nil, errors.New("routines repository error: " + err.Error())
		}
		if exists {
			continue
		}
		inst, err := rs.materializeInstance(ctx, tpl, period, false)
		if err != nil {
			return nil, err
		}
		created = append(created, inst)
		if len(tpl.Sequence) > 0 {
			tpl.SequencePosition++
			sequenceMoved = true
		}
	}
	if sequenceMoved {
		if err := rs.repo.UpdateTemplate(ctx, tpl); err != nil {
			return nil, errors.New("routines repository error: " + err.Error())
		}
	}
	return created, nil
}

// materializeInstance creates the instance row and its backing event. A
// fixed-time template gets a habit event at the preferred time right away;
// a flexible one gets a floating placeholder until a time is decided.
func (rs *RoutineService) materializeInstance(ctx context.Context, tpl *entity.RoutineTemplate, period time.Time, carried bool) (*entity.RoutineInstance, error) {
	now := time.Now().UTC()
	inst := &entity.RoutineInstance{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		UserID:     tpl.UserID,
		PeriodDate: period,
		Carried:    carried,
		Status:     entity.InstanceGenerated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(tpl.Sequence) > 0 {
		inst.SequenceItem = tpl.Sequence[tpl.SequencePosition%len(tpl.Sequence)]
	}

	title := tpl.Name
	if inst.SequenceItem != "" {
		title = tpl.Name + " - " + inst.SequenceItem
	}
	eventReq := &CreateEventRequest{
		Title:                title,
		Description:          tpl.Description,
		Category:             tpl.Category,
		CreatedBy:            "routine",
		ParentRoutineID:      &tpl.ID,
		AcknowledgeConflicts: true,
		Trigger:              "materialize routine: " + tpl.Name,
	}
	fixed := !tpl.IsFlexible
	if fixed {
		at := tpl.RepeatRule.At
		if at == "" && len(tpl.PreferredSlots) > 0 {
			at = tpl.PreferredSlots[0].Start
		}
		if at == "" {
			at = "09:00"
		}
		scheduledAt, err := clockOn(period, at)
		if err != nil {
			return nil, errorvalues.ErrInvalidRepeatRule
		}
		if carried {
			// A carried instance never displaces whatever already sits at the
			// template's usual time. If the slot is taken it lands floating.
			window := entity.Interval{Start: scheduledAt, End: scheduledAt.Add(defaultDurationMinutes * time.Minute)}
			overlaps, err := rs.events.CheckConflicts(ctx, tpl.UserID, window)
			if err != nil {
				return nil, err
			}
			if len(overlaps) > 0 {
				fixed = false
			}
		}
		if fixed {
			inst.ScheduledAt = &scheduledAt
			eventReq.StartTime = &scheduledAt
			eventReq.EventType = entity.EventHabit
		}
	}
	if !fixed {
		// Placeholder stays floating until the user decides the slot.
		estimate := defaultDurationMinutes
		eventReq.EstimatedDuration = &estimate
		eventReq.EstimateConfidence = 0.5
	}
	result, err := rs.events.CreateEvent(ctx, tpl.UserID, eventReq)
	if err != nil {
		return nil, errors.New("materializing routine event error: " + err.Error())
	}
	inst.Status = entity.InstanceScheduled
	inst.EventID = &result.Event.ID
	if err := rs.repo.CreateInstance(ctx, inst); err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	return inst, nil
}

func (rs *RoutineService) GetActiveInstancesForPeriod(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]InstanceWithEvent, error) {
	instances, err := rs.repo.GetInstancesByUser(ctx, uid, truncateToDay(from), truncateToDay(to))
	if err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	result := make([]InstanceWithEvent, 0, len(instances))
	for _, inst := range instances {
		if inst.Status == entity.InstanceCancelled {
			continue
		}
		item := InstanceWithEvent{Instance: inst}
		if inst.EventID != nil {
			event, err := rs.events.GetEvent(ctx, *inst.EventID, uid)
			if err == nil {
				item.Event = event
			} else if !errors.Is(err, errorvalues.ErrEventNotFound) {
				return nil, err
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (rs *RoutineService) MarkInstanceCompleted(ctx context.Context, instanceID, uid uuid.UUID, notes string) (*entity.RoutineExecution, error) {
	return rs.executeInstance(ctx, instanceID, uid, entity.ExecCompleted, "", notes)
}

func (rs *RoutineService) MarkInstanceSkipped(ctx context.Context, instanceID, uid uuid.UUID, reason string) (*entity.RoutineExecution, error) {
	return rs.executeInstance(ctx, instanceID, uid, entity.ExecSkipped, reason, "")
}

// executeInstance writes the single immutable execution record and moves the
// instance to the matching terminal sub-state. A second execution attempt
// fails without touching anything.
func (rs *RoutineService) executeInstance(ctx context.Context, instanceID, uid uuid.UUID, action entity.ExecutionAction, reason, notes string) (*entity.RoutineExecution, error) {
	inst, err := rs.repo.GetInstanceByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, errorvalues.ErrInstanceNotFound) {
			return nil, err
		}
		return nil, errors.New("routines repository error: " + err.Error())
	}
	if inst.UserID != uid {
		return nil, errorvalues.ErrWrongOwner
	}
	if inst.Status.Executed() {
		return nil, errorvalues.ErrInstanceAlreadyExecuted
	}
	now := time.Now().UTC()
	exec := &entity.RoutineExecution{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		Action:     action,
		Reason:     reason,
		Notes:      notes,
		ExecutedAt: now,
		CreatedAt:  now,
	}
	if err := rs.repo.CreateExecution(ctx, exec); err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	switch action {
	case entity.ExecCompleted:
		inst.Status = entity.InstanceCompleted
	case entity.ExecSkipped:
		inst.Status = entity.InstanceSkipped
	case entity.ExecCancelled:
		inst.Status = entity.InstanceCancelled
	case entity.ExecRescheduled:
		inst.Status = entity.InstanceRescheduled
	}
	inst.UpdatedAt = now
	if err := rs.repo.UpdateInstance(ctx, inst); err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	if inst.EventID != nil {
		switch action {
		case entity.ExecCompleted:
			if _, err := rs.events.CompleteEvent(ctx, *inst.EventID, uid); err != nil && !errors.Is(err, errorvalues.ErrEventNotFound) {
				return nil, err
			}
		case entity.ExecSkipped, entity.ExecCancelled, entity.ExecRescheduled:
			if err := rs.events.DeleteEvent(ctx, *inst.EventID, uid, "close routine instance"); err != nil && !errors.Is(err, errorvalues.ErrEventNotFound) {
				return nil, err
			}
		}
	}
	return exec, nil
}

// GetStats derives completion rate and current streak from instance history.
// Nothing here is separately stored mutable state.
func (rs *RoutineService) GetStats(ctx context.Context, templateID, uid uuid.UUID) (*entity.RoutineStats, error) {
	tpl, err := rs.repo.GetTemplateByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, errorvalues.ErrTemplateNotFound) {
			return nil, err
		}
		return nil, errors.New("routines repository error: " + err.Error())
	}
	if tpl.UserID != uid {
		return nil, errorvalues.ErrWrongOwner
	}
	horizon := time.Now().UTC().Add(366 * 24 * time.Hour)
	instances, err := rs.repo.GetInstancesByTemplate(ctx, tpl.ID, time.Time{}, horizon)
	if err != nil {
		return nil, errors.New("routines repository error: " + err.Error())
	}
	stats := &entity.RoutineStats{TemplateID: tpl.ID}
	for _, inst := range instances {
		if inst.Status == entity.InstanceCancelled {
			continue
		}
		stats.TotalInstances++
		if inst.Status == entity.InstanceCompleted {
			stats.Completed++
			at := inst.UpdatedAt
			if stats.LastCompleted == nil || at.After(*stats.LastCompleted) {
				stats.LastCompleted = &at
			}
		}
	}
	if stats.TotalInstances > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.TotalInstances)
	}
	// Current streak counts consecutive completed periods backwards from the
	// most recent executed instance; pending/future instances do not break it.
streak:
	for i := len(instances) - 1; i >= 0; i-- {
		switch instances[i].Status {
		case entity.InstanceCompleted:
			stats.CurrentStreak++
		case entity.InstanceGenerated, entity.InstanceScheduled, entity.InstanceCancelled:
			continue
		default:
			break streak
		}
	}
	return stats, nil
}
