package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/limbo/cadence/pkg/entity"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Name     string `validate:"required,alphanum_underscore,min=3,max=100"`
	Password string `validate:"required,min=8,max=72"`
}

type PaginationOpts struct {
	Limit  int
	Offset int
}

type UserServiceI interface {
	// Validates user's credentials, creates new row in database. Returns user's data with ID
	Register(ctx context.Context, req *RegisterRequest) (*entity.User, error)
	// Compares given credentials. If ok, give back user's data with ID.
	Login(ctx context.Context, name, password string) (*entity.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	GetByName(ctx context.Context, name string) (*entity.User, error)
	DeleteAccount(ctx context.Context, id uuid.UUID, password string) error
}

func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// TimeParserI is the natural-language time collaborator. The engine never
// interprets free text itself; a hint goes out with a reference instant and
// zone, an absolute interval with a confidence comes back.
type TimeParserI interface {
	Parse(text string, ref time.Time, loc *time.Location) (entity.Interval, float64, error)
}

// CreateEventRequest carries every field the caller may set. Duration inputs
// are split by provenance: Duration is a user-exact value, EstimatedDuration
// an upstream AI estimate with its confidence.
type CreateEventRequest struct {
	Title              string `validate:"required,min=1,max=200"`
	Description        string
	StartTime          *time.Time
	EndTime            *time.Time
	Duration           *int
	EstimatedDuration  *int
	EstimateConfidence float64
	EventType          entity.EventType
	Category           entity.Category
	Tags               []string
	Location           string
	Urgency            int
	Importance         int
	EnergyRequired     entity.EnergyLevel
	CreatedBy          string
	ParentRoutineID    *uuid.UUID
	// TimeHint is forwarded to the TimeParser collaborator when no explicit
	// start/end was provided.
	TimeHint string
	Timezone string
	// AcknowledgeConflicts lets a schedule event double-book another schedule
	// event. RequireConflictFree turns any overlap into a hard failure.
	AcknowledgeConflicts bool
	RequireConflictFree  bool
	Trigger              string
}

// UpdateEventRequest applies only non-nil fields.
type UpdateEventRequest struct {
	Title          *string
	Description    *string
	StartTime      *time.Time
	EndTime        *time.Time
	ClearTimes     bool
	Duration       *int
	EventType      *entity.EventType
	Category       *entity.Category
	Tags           []string
	Location       *string
	Urgency        *int
	Importance     *int
	EnergyRequired *entity.EnergyLevel
	Trigger        string
}

// EventResult pairs the written event with the advisory overlap list.
type EventResult struct {
	Event     *entity.Event    `json:"event"`
	Conflicts []entity.Overlap `json:"conflicts,omitempty"`
}

type EventsServiceI interface {
	CreateEvent(ctx context.Context, uid uuid.UUID, req *CreateEventRequest) (*EventResult, error)
	UpdateEvent(ctx context.Context, eventID, uid uuid.UUID, req *UpdateEventRequest) (*EventResult, error)
	DeleteEvent(ctx context.Context, eventID, uid uuid.UUID, trigger string) error
	CompleteEvent(ctx context.Context, eventID, uid uuid.UUID) (*entity.Event, error)
	GetEvent(ctx context.Context, eventID, uid uuid.UUID) (*entity.Event, error)
	GetUserEvents(ctx context.Context, uid uuid.UUID, pagination PaginationOpts) ([]*entity.Event, error)
	CheckConflicts(ctx context.Context, uid uuid.UUID, candidate entity.Interval) ([]entity.Overlap, error)
}

type SnapshotManagerI interface {
	// Capture persists one unit of work as a snapshot and enforces retention
	Capture(ctx context.Context, uid uuid.UUID, trigger string, changes []entity.EventChange) (*entity.Snapshot, error)
	List(ctx context.Context, uid uuid.UUID, pagination PaginationOpts) ([]*entity.Snapshot, error)
	// Revert restores every before-state in reverse order, all-or-nothing.
	// Returns the ids of restored events.
	Revert(ctx context.Context, snapshotID, uid uuid.UUID) ([]uuid.UUID, error)
	// UndoLast reverts the newest non-reverted snapshot
	UndoLast(ctx context.Context, uid uuid.UUID) ([]uuid.UUID, error)
}

type CreateTemplateRequest struct {
	Name           string `validate:"required,min=1,max=200"`
	Description    string
	Category       entity.Category
	RepeatRule     entity.RepeatRule
	Sequence       []string
	IsFlexible     bool
	PreferredSlots []entity.TimeSlot
	Makeup         entity.MakeupStrategy
}

// InstanceWithEvent joins an instance with its materialized event, when any.
type InstanceWithEvent struct {
	Instance *entity.RoutineInstance `json:"instance"`
	Event    *entity.Event           `json:"event,omitempty"`
}

type RoutineServiceI interface {
	CreateTemplate(ctx context.Context, uid uuid.UUID, req *CreateTemplateRequest) (*entity.RoutineTemplate, error)
	GetUserTemplates(ctx context.Context, uid uuid.UUID, activeOnly bool) ([]*entity.RoutineTemplate, error)
	GenerateInstances(ctx context.Context, templateID uuid.UUID, from, to time.Time) ([]*entity.RoutineInstance, error)
	GetActiveInstancesForPeriod(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]InstanceWithEvent, error)
	MarkInstanceCompleted(ctx context.Context, instanceID, uid uuid.UUID, notes string) (*entity.RoutineExecution, error)
	MarkInstanceSkipped(ctx context.Context, instanceID, uid uuid.UUID, reason string) (*entity.RoutineExecution, error)
	GetStats(ctx context.Context, templateID, uid uuid.UUID) (*entity.RoutineStats, error)
}
