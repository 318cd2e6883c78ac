package entity

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Name         string
	PasswordHash string
}

// DurationSource records where an event's duration value came from.
type DurationSource string

const (
	DurationUserExact    DurationSource = "user_exact"
	DurationAIEstimate   DurationSource = "ai_estimate"
	DurationDefault      DurationSource = "default"
	DurationUserAdjusted DurationSource = "user_adjusted"
)

type EventType string

const (
	EventSchedule EventType = "schedule"
	EventDeadline EventType = "deadline"
	EventFloating EventType = "floating"
	EventHabit    EventType = "habit"
	EventReminder EventType = "reminder"
)

type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusInProgress EventStatus = "in_progress"
	StatusCompleted  EventStatus = "completed"
	StatusCancelled  EventStatus = "cancelled"
)

// EnergyLevel is stored and exposed for downstream planners; the engine never
// scores it.
type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "LOW"
	EnergyMedium EnergyLevel = "MEDIUM"
	EnergyHigh   EnergyLevel = "HIGH"
)

type Category string

const (
	CategoryStudy  Category = "STUDY"
	CategoryWork   Category = "WORK"
	CategorySocial Category = "SOCIAL"
	CategoryLife   Category = "LIFE"
	CategoryHealth Category = "HEALTH"
)

// Event is the single schedulable item. All time fields are optional: a
// floating task carries neither start nor end, a deadline carries only an
// end. Duration is minutes.
type Event struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"uid"`
	Title              string         `json:"title"`
	Description        string         `json:"desc,omitempty"`
	StartTime          *time.Time     `json:"start_time,omitempty"`
	EndTime            *time.Time     `json:"end_time,omitempty"`
	Duration           *int           `json:"duration,omitempty"`
	DurationSource     DurationSource `json:"duration_source"`
	DurationConfidence float64        `json:"duration_confidence"`
	AIOriginalEstimate *int           `json:"ai_original_estimate,omitempty"`
	EventType          EventType      `json:"event_type"`
	Category           Category       `json:"category"`
	Tags               []string       `json:"tags,omitempty"`
	Location           string         `json:"location,omitempty"`
	Urgency            int            `json:"urgency"`
	Importance         int            `json:"importance"`
	EnergyRequired     EnergyLevel    `json:"energy_required"`
	Status             EventStatus    `json:"status"`
	ParentRoutineID    *uuid.UUID     `json:"parent_routine_id,omitempty"`
	CreatedBy          string         `json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Terminal reports whether the event reached a final status. No transition
// leaves a terminal status except through snapshot revert.
func (e *Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusCancelled
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// EffectiveInterval returns the range the event occupies for conflict
// purposes. An event without end but with a duration occupies
// [start, start+duration). Returns ok=false for floating events.
func (e *Event) EffectiveInterval() (Interval, bool) {
	switch {
	case e.StartTime != nil && e.EndTime != nil:
		return Interval{Start: *e.StartTime, End: *e.EndTime}, true
	case e.StartTime != nil && e.Duration != nil:
		return Interval{Start: *e.StartTime, End: e.StartTime.Add(time.Duration(*e.Duration) * time.Minute)}, true
	default:
		return Interval{}, false
	}
}

// Overlap is one conflict between a candidate interval and an existing event.
type Overlap struct {
	EventID uuid.UUID `json:"event_id"`
	Title   string    `json:"title"`
	Window  Interval  `json:"window"`
}

type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// EventChange holds full before/after copies so a prior version can be
// reconstructed without consulting the events table.
type EventChange struct {
	EventID uuid.UUID    `json:"event_id"`
	Action  ChangeAction `json:"action"`
	Before  *Event       `json:"before,omitempty"`
	After   *Event       `json:"after,omitempty"`
}

// Snapshot is one revertible unit of work. Changes are strictly ordered;
// revert replays them in reverse.
type Snapshot struct {
	ID         uuid.UUID     `json:"id"`
	UserID     uuid.UUID     `json:"uid"`
	Trigger    string        `json:"trigger"`
	Changes    []EventChange `json:"changes"`
	IsReverted bool          `json:"is_reverted"`
	RevertedAt *time.Time    `json:"reverted_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

type RepeatFrequency string

const (
	RepeatDaily   RepeatFrequency = "daily"
	RepeatWeekly  RepeatFrequency = "weekly"
	RepeatMonthly RepeatFrequency = "monthly"
)

// RepeatRule describes when a routine recurs. Weekdays use 0=Monday..6=Sunday,
// MonthDays use calendar day numbers. At is the wall-clock start ("18:00").
type RepeatRule struct {
	Frequency RepeatFrequency `json:"frequency"`
	Weekdays  []int           `json:"weekdays,omitempty"`
	MonthDays []int           `json:"month_days,omitempty"`
	At        string          `json:"at,omitempty"`
	Until     *time.Time      `json:"until,omitempty"`
}

// TimeSlot is a wall-clock window like {"17:00","20:00"}.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type MakeupStrategy string

const (
	MakeupSkip           MakeupStrategy = "skip"
	MakeupCarryOver      MakeupStrategy = "carry_over"
	MakeupFlexibleReslot MakeupStrategy = "flexible_reslot"
)

type RoutineTemplate struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"uid"`
	Name             string         `json:"name"`
	Description      string         `json:"desc,omitempty"`
	Category         Category       `json:"category"`
	RepeatRule       RepeatRule     `json:"repeat_rule"`
	Sequence         []string       `json:"sequence,omitempty"`
	SequencePosition int            `json:"sequence_position"`
	IsFlexible       bool           `json:"is_flexible"`
	PreferredSlots   []TimeSlot     `json:"preferred_time_slots,omitempty"`
	Makeup           MakeupStrategy `json:"makeup_strategy"`
	Active           bool           `json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type InstanceStatus string

const (
	InstanceGenerated   InstanceStatus = "generated"
	InstanceScheduled   InstanceStatus = "scheduled"
	InstanceCompleted   InstanceStatus = "completed"
	InstanceSkipped     InstanceStatus = "skipped"
	InstanceCancelled   InstanceStatus = "cancelled"
	InstanceRescheduled InstanceStatus = "rescheduled"
)

// Executed reports whether the instance already reached a terminal sub-state.
func (s InstanceStatus) Executed() bool {
	switch s {
	case InstanceCompleted, InstanceSkipped, InstanceCancelled, InstanceRescheduled:
		return true
	}
	return false
}

// RoutineInstance is one concrete occurrence of a template for a period.
// EventID is a non-owning reference to the materialized event. Carried marks
// an instance produced by the carry_over makeup strategy.
type RoutineInstance struct {
	ID           uuid.UUID      `json:"id"`
	TemplateID   uuid.UUID      `json:"template_id"`
	UserID       uuid.UUID      `json:"uid"`
	PeriodDate   time.Time      `json:"period_date"`
	ScheduledAt  *time.Time     `json:"scheduled_at,omitempty"`
	SequenceItem string         `json:"sequence_item,omitempty"`
	Carried      bool           `json:"carried"`
	Status       InstanceStatus `json:"status"`
	EventID      *uuid.UUID     `json:"event_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type ExecutionAction string

const (
	ExecCompleted   ExecutionAction = "completed"
	ExecSkipped     ExecutionAction = "skipped"
	ExecCancelled   ExecutionAction = "cancelled"
	ExecRescheduled ExecutionAction = "rescheduled"
)

// RoutineExecution is immutable once written. Corrections create a new
// instance instead.
type RoutineExecution struct {
	ID         uuid.UUID       `json:"id"`
	InstanceID uuid.UUID       `json:"instance_id"`
	Action     ExecutionAction `json:"action"`
	Reason     string          `json:"reason,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RoutineStats is a derived read-only view over execution history.
type RoutineStats struct {
	TemplateID     uuid.UUID  `json:"template_id"`
	TotalInstances int        `json:"total_instances"`
	Completed      int        `json:"completed"`
	CompletionRate float64    `json:"completion_rate"`
	CurrentStreak  int        `json:"current_streak"`
	LastCompleted  *time.Time `json:"last_completed,omitempty"`
}
