package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/pkg/cleanup"
	"github.com/limbo/cadence/pkg/entity"
)

const eventColumns = `id, user_id, title, description, start_time, end_time, duration,
	duration_source, duration_confidence, ai_original_estimate, event_type, category,
	tags, location, urgency, importance, energy_required, status, parent_routine_id,
	created_by, created_at, updated_at`

type EventsRepository struct {
	conn PgConnection
}

func NewEventsRepo(cfg DBConfig) *EventsRepository {
	pool, err := pgxpool.New(context.Background(), cfg.ConnString())
	if err != nil {
		log.Fatal("creating connection for eventsRepo error: " + err.Error())
	}
	err = pool.Ping(context.Background())
	if err != nil {
		log.Fatal("error while pinging connection for eventsRepo: " + err.Error())
	}
	cleanup.Register(&cleanup.Job{
		Name: "closing pgxpool",
		F: func() error {
			pool.Close()
			return nil
		},
	})
	return &EventsRepository{
		conn: pool,
	}
}

func NewEventsRepoWithConn(conn PgConnection) *EventsRepository {
	err := conn.Ping(context.Background())
	if err != nil {
		log.Fatal("error while pinging connection for eventsRepo: " + err.Error())
	}
	return &EventsRepository{
		conn: conn,
	}
}

func (er *EventsRepository) Create(ctx context.Context, event *entity.Event) error {
	if event == nil {
		return errors.New("event is nil")
	}
	_, err := er.conn.Exec(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);`,
		event.ID,
		event.UserID,
		event.Title,
		event.Description,
		event.StartTime,
		event.EndTime,
		event.Duration,
		event.DurationSource,
		event.DurationConfidence,
		event.AIOriginalEstimate,
		event.EventType,
		event.Category,
		event.Tags,
		event.Location,
		event.Urgency,
		event.Importance,
		event.EnergyRequired,
		event.Status,
		event.ParentRoutineID,
		event.CreatedBy,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return errors.New("creating event db error: " + err.Error())
	}
	return nil
}

func scanEvent(row pgx.Row) (*entity.Event, error) {
	var e entity.Event
	err := row.Scan(
		&e.ID, &e.UserID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.Duration,
		&e.DurationSource, &e.DurationConfidence, &e.AIOriginalEstimate, &e.EventType, &e.Category,
		&e.Tags, &e.Location, &e.Urgency, &e.Importance, &e.EnergyRequired, &e.Status,
		&e.ParentRoutineID, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (er *EventsRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	row := er.conn.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1;`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrEventNotFound
		}
		return nil, errors.New("getting event by id error: " + err.Error())
	}
	return event, nil
}

func (er *EventsRepository) GetByUserID(ctx context.Context, uid uuid.UUID, limit, offset int) ([]*entity.Event, error) {
	rows, err := er.conn.Query(ctx, `SELECT `+eventColumns+` FROM events
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3;`, uid, limit, offset)
	if err != nil {
		return nil, errors.New("getting events by uid error: " + err.Error())
	}
	defer rows.Close()
	events := make([]*entity.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.New("unmarshalling event error: " + err.Error())
		}
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected error after scanning: " + rows.Err().Error())
	}
	return events, nil
}

// GetOpenInWindow over-selects events with a start inside or overlapping the
// window; events without any start never conflict so they are excluded here.
func (er *EventsRepository) GetOpenInWindow(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]*entity.Event, error) {
	rows, err := er.conn.Query(ctx, `SELECT `+eventColumns+` FROM events
		WHERE user_id = $1
		AND status IN ('pending', 'in_progress')
		AND start_time IS NOT NULL
		AND start_time < $3
		AND COALESCE(end_time, start_time + make_interval(mins => COALESCE(duration, 0))) > $2
		ORDER BY start_time;`, uid, from, to)
	if err != nil {
		return nil, errors.New("getting open events in window error: " + err.Error())
	}
	defer rows.Close()
	events := make([]*entity.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.New("unmarshalling event error: " + err.Error())
		}
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected error after scanning: " + rows.Err().Error())
	}
	return events, nil
}

func (er *EventsRepository) Update(ctx context.Context, event *entity.Event) error {
	ct, err := er.conn.Exec(ctx, `UPDATE events SET title = $1, description = $2, start_time = $3,
		end_time = $4, duration = $5, duration_source = $6, duration_confidence = $7,
		ai_original_estimate = $8, event_type = $9, category = $10, tags = $11, location = $12,
		urgency = $13, importance = $14, energy_required = $15, status = $16,
		parent_routine_id = $17, updated_at = NOW()
		WHERE id = $18;`,
		event.Title, event.Description, event.StartTime, event.EndTime, event.Duration,
		event.DurationSource, event.DurationConfidence, event.AIOriginalEstimate,
		event.EventType, event.Category, event.Tags, event.Location,
		event.Urgency, event.Importance, event.EnergyRequired, event.Status,
		event.ParentRoutineID, event.ID,
	)
	if err != nil {
		return errors.New("error updating event: " + err.Error())
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrEventNotFound
	}
	return nil
}

func (er *EventsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := er.conn.Exec(ctx, `DELETE FROM events WHERE id = $1;`, id)
	if err != nil {
		return errors.New("error deleting event: " + err.Error())
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrEventNotFound
	}
	return nil
}

// ApplyRevert lands every staged operation in one transaction. "restore"
// updates the existing row or recreates it when the row is gone.
func (er *EventsRepository) ApplyRevert(ctx context.Context, ops []RevertOp) error {
	tx, err := er.conn.Begin(ctx)
	if err != nil {
		return errors.New("opening revert transaction error: " + err.Error())
	}
	defer tx.Rollback(ctx)
	for _, op := range ops {
		switch op.Kind {
		case "delete":
			ct, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1;`, op.EventID)
			if err != nil {
				return errors.New("revert delete error: " + err.Error())
			}
			if ct.RowsAffected() == 0 {
				return errorvalues.ErrRevertFailed
			}
		case "restore":
			if op.State == nil {
				return errorvalues.ErrRevertFailed
			}
			e := op.State
			_, err := tx.Exec(ctx, `INSERT INTO events (`+eventColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
				ON CONFLICT (id) DO UPDATE SET title = $3, description = $4, start_time = $5,
				end_time = $6, duration = $7, duration_source = $8, duration_confidence = $9,
				ai_original_estimate = $10, event_type = $11, category = $12, tags = $13,
				location = $14, urgency = $15, importance = $16, energy_required = $17,
				status = $18, parent_routine_id = $19, updated_at = NOW();`,
				e.ID, e.UserID, e.Title, e.Description, e.StartTime, e.EndTime, e.Duration,
				e.DurationSource, e.DurationConfidence, e.AIOriginalEstimate, e.EventType, e.Category,
				e.Tags, e.Location, e.Urgency, e.Importance, e.EnergyRequired, e.Status,
				e.ParentRoutineID, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
			)
			if err != nil {
				return errors.New("revert restore error: " + err.Error())
			}
		default:
			return errorvalues.ErrRevertFailed
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.New("committing revert error: " + err.Error())
	}
	return nil
}
