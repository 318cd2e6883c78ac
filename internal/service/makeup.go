package service

import (
	"context"
	"errors"
	"time"

	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/pkg/entity"
)

const (
	reslotHorizonDays = 7
	carryHorizonDays  = 60
)

var defaultReslotWindows = []entity.TimeSlot{
	{Start: "09:00", End: "10:00"},
	{Start: "14:00", End: "15:00"},
	{Start: "19:00", End: "20:00"},
}

// HandleElapsedInstance applies the template's makeup strategy to an instance
// whose period passed without execution.
func (rs *RoutineService) HandleElapsedInstance(ctx context.Context, inst *entity.RoutineInstance) error {
	if inst.Status.Executed() {
		return errorvalues.ErrInstanceAlreadyExecuted
	}
	tpl, err := rs.repo.GetTemplateByID(ctx, inst.TemplateID)
	if err != nil {
		if errors.Is(err, errorvalues.ErrTemplateNotFound) {
			return err
		}
		return errors.New("routines repository error: " + err.Error())
	}
	switch tpl.Makeup {
	case entity.MakeupCarryOver:
		return rs.carryOver(ctx, tpl, inst)
	case entity.MakeupFlexibleReslot:
		return rs.flexibleReslot(ctx, tpl, inst)
	default:
		_, err := rs.executeInstance(ctx, inst.ID, inst.UserID, entity.ExecSkipped, "period elapsed", "")
		return err
	}
}

// carryOver closes the elapsed instance and materializes a carried copy on
// the next period the repeat rule produces. The carried copy never counts as
// that period's regular instance, so normal generation is unaffected.
func (rs *RoutineService) carryOver(ctx context.Context, tpl *entity.RoutineTemplate, inst *entity.RoutineInstance) error {
	from := inst.PeriodDate.Add(24 * time.Hour)
	periods, err := expandPeriods(tpl.RepeatRule, from, from.Add(carryHorizonDays*24*time.Hour))
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		// Rule ran out (until passed), nothing left to carry into.
		_, err := rs.executeInstance(ctx, inst.ID, inst.UserID, entity.ExecSkipped, "no upcoming period", "")
		return err
	}
	if _, err := rs.materializeInstance(ctx, tpl, periods[0], true); err != nil {
		return err
	}
	_, err = rs.executeInstance(ctx, inst.ID, inst.UserID, entity.ExecRescheduled,
		"carried over to "+periods[0].Format("2006-01-02"), "")
	return err
}

// flexibleReslot keeps the instance live and moves its event into the first
// free preferred window within the next days. When every window is occupied
// the instance is skipped and the caller learns via ErrNoFreeSlot.
func (rs *RoutineService) flexibleReslot(ctx context.Context, tpl *entity.RoutineTemplate, inst *entity.RoutineInstance) error {
	windows := tpl.PreferredSlots
	if len(windows) == 0 {
		windows = defaultReslotWindows
	}
	now := time.Now().UTC()
	day := truncateToDay(now)
	for d := 0; d < reslotHorizonDays; d++ {
		candidateDay := day.Add(time.Duration(d) * 24 * time.Hour)
		for _, slot := range windows {
			start, err := clockOn(candidateDay, slot.Start)
			if err != nil {
				return errorvalues.ErrInvalidRepeatRule
			}
			end, err := clockOn(candidateDay, slot.End)
			if err != nil {
				return errorvalues.ErrInvalidRepeatRule
			}
			if !end.After(start) || start.Before(now) {
				continue
			}
			overlaps, err := rs.events.CheckConflicts(ctx, tpl.UserID, entity.Interval{Start: start, End: end})
			if err != nil {
				return err
			}
			if len(overlaps) > 0 {
				continue
			}
			return rs.reslotTo(ctx, inst, start, end)
		}
	}
	if _, err := rs.executeInstance(ctx, inst.ID, inst.UserID, entity.ExecSkipped, "no free slot", ""); err != nil {
		return err
	}
	return errorvalues.ErrNoFreeSlot
}

func (rs *RoutineService) reslotTo(ctx context.Context, inst *entity.RoutineInstance, start, end time.Time) error {
	if inst.EventID != nil {
		req := &UpdateEventRequest{
			StartTime: &start,
			EndTime:   &end,
			Trigger:   "reslot routine instance",
		}
		if _, err := rs.events.UpdateEvent(ctx, *inst.EventID, inst.UserID, req); err != nil {
			return err
		}
	}
	inst.ScheduledAt = &start
	inst.Status = entity.InstanceScheduled
	inst.UpdatedAt = time.Now().UTC()
	if err := rs.repo.UpdateInstance(ctx, inst); err != nil {
		return errors.New("routines repository error: " + err.Error())
	}
	return nil
}
