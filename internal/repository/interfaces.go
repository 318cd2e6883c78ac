package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/limbo/cadence/pkg/entity"
)

type UsersRepositoryI interface {
	// Creates new user in database
	Create(ctx context.Context, user *entity.User) error
	// Looks up user by name. Can be used for login
	FindByName(ctx context.Context, name string) (*entity.User, error)
	// Looks up user by uid. Can be used for authorization middleware
	FindByID(ctx context.Context, uid uuid.UUID) (*entity.User, error)
	// Updates user's info
	Update(ctx context.Context, user *entity.User) error
	// Deletes user
	Delete(ctx context.Context, uid uuid.UUID) error
}

type EventsRepositoryI interface {
	// Inserts a fully populated event row (ID must be set by the caller)
	Create(ctx context.Context, event *entity.Event) error
	// Searches event with given id
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Event, error)
	// Lists events owned by user, newest first. Requires pagination params
	GetByUserID(ctx context.Context, uid uuid.UUID, limit, offset int) ([]*entity.Event, error)
	// Lists non-terminal events whose effective interval may intersect [from, to)
	GetOpenInWindow(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]*entity.Event, error)
	// Full-row update by event ID
	Update(ctx context.Context, event *entity.Event) error
	// Physically removes the row. Only snapshot revert and expiry purge call this
	Delete(ctx context.Context, id uuid.UUID) error
	// Applies a staged batch of revert operations inside one transaction.
	// Either every operation lands or none does.
	ApplyRevert(ctx context.Context, ops []RevertOp) error
}

// RevertOp is one staged inverse change. Kind "delete" removes the row with
// EventID; kind "restore" upserts State.
type RevertOp struct {
	Kind    string
	EventID uuid.UUID
	State   *entity.Event
}

type SnapshotsRepositoryI interface {
	// Persists snapshot header and its ordered change rows in one transaction
	Create(ctx context.Context, snap *entity.Snapshot) error
	// Loads snapshot with all changes in recorded order
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Snapshot, error)
	// Lists snapshot summaries for user, newest first
	GetByUserID(ctx context.Context, uid uuid.UUID, limit, offset int) ([]*entity.Snapshot, error)
	// Returns the newest non-reverted, non-expired snapshot
	GetLatestActive(ctx context.Context, uid uuid.UUID) (*entity.Snapshot, error)
	// Flags snapshot as reverted
	MarkReverted(ctx context.Context, id uuid.UUID, at time.Time) error
	// Removes oldest snapshots beyond keep most recent ones
	DeleteOldest(ctx context.Context, uid uuid.UUID, keep int) error
}

type RoutinesRepositoryI interface {
	CreateTemplate(ctx context.Context, tpl *entity.RoutineTemplate) error
	GetTemplateByID(ctx context.Context, id uuid.UUID) (*entity.RoutineTemplate, error)
	GetTemplatesByUserID(ctx context.Context, uid uuid.UUID, activeOnly bool) ([]*entity.RoutineTemplate, error)
	// Lists active templates across all users, used by the replenishment job
	GetActiveTemplates(ctx context.Context) ([]*entity.RoutineTemplate, error)
	UpdateTemplate(ctx context.Context, tpl *entity.RoutineTemplate) error

	CreateInstance(ctx context.Context, inst *entity.RoutineInstance) error
	GetInstanceByID(ctx context.Context, id uuid.UUID) (*entity.RoutineInstance, error)
	GetInstancesByTemplate(ctx context.Context, templateID uuid.UUID, from, to time.Time) ([]*entity.RoutineInstance, error)
	GetInstancesByUser(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]*entity.RoutineInstance, error)
	// Reports whether a non-cancelled regular (carried=false) instance exists
	// for the template on the given period date
	RegularInstanceExists(ctx context.Context, templateID uuid.UUID, period time.Time) (bool, error)
	UpdateInstance(ctx context.Context, inst *entity.RoutineInstance) error
	// Lists non-executed instances whose period elapsed before the cutoff
	GetPendingElapsed(ctx context.Context, cutoff time.Time) ([]*entity.RoutineInstance, error)

	CreateExecution(ctx context.Context, exec *entity.RoutineExecution) error
	GetExecutionsByInstance(ctx context.Context, instanceID uuid.UUID) ([]*entity.RoutineExecution, error)
	CountExecutionsByInstance(ctx context.Context, instanceID uuid.UUID) (int, error)
}

type DBConfig interface {
	ConnString() string
}

type PgConnection interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGCfg struct {
	Address  string
	Username string
	Password string
	DB       string
}

func (pgcfg *PGCfg) ConnString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s/%s", pgcfg.Username, pgcfg.Password, pgcfg.Address, pgcfg.DB)
}
