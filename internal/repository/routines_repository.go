package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/pkg/cleanup"
	"github.com/limbo/cadence/pkg/entity"
)

const templateColumns = `id, user_id, name, description, category, repeat_rule, sequence,
	sequence_position, is_flexible, preferred_time_slots, makeup_strategy, active,
	created_at, updated_at`

const instanceColumns = `id, template_id, user_id, period_date, scheduled_at, sequence_item,
	carried, status, event_id, created_at, updated_at`

type RoutinesRepository struct {
	conn PgConnection
}

func NewRoutinesRepo(cfg DBConfig) *RoutinesRepository {
	pool, err := pgxpool.New(context.Background(), cfg.ConnString())
	if err != nil {
		log.Fatal("creating connection for routinesRepo error: " + err.Error())
	}
	err = pool.Ping(context.Background())
	if err != nil {
		log.Fatal("error while pinging connection for routinesRepo: " + err.Error())
	}
	cleanup.Register(&cleanup.Job{
		Name: "closing pgxpool",
		F: func() error {
			pool.Close()
			return nil
		},
	})
	return &RoutinesRepository{
		conn: pool,
	}
}

func NewRoutinesRepoWithConn(conn PgConnection) *RoutinesRepository {
	err := conn.Ping(context.Background())
	if err != nil {
		log.Fatal("error while pinging connection for routinesRepo: " + err.Error())
	}
	return &RoutinesRepository{
		conn: conn,
	}
}

func (rr *RoutinesRepository) CreateTemplate(ctx context.Context, tpl *entity.RoutineTemplate) error {
	if tpl == nil {
		return errors.New("template is nil")
	}
	rule, err := sonic.Marshal(tpl.RepeatRule)
	if err != nil {
		return errors.New("marshalling repeat rule error: " + err.Error())
	}
	slots, err := sonic.Marshal(tpl.PreferredSlots)
	if err != nil {
		return errors.New("marshalling time slots error: " + err.Error())
	}
	_, err = rr.conn.Exec(ctx, `INSERT INTO routine_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);`,
		tpl.ID, tpl.UserID, tpl.Name, tpl.Description, tpl.Category, rule, tpl.Sequence,
		tpl.SequencePosition, tpl.IsFlexible, slots, tpl.Makeup, tpl.Active,
		tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return errors.New("creating routine template db error: " + err.Error())
	}
	return nil
}

func scanTemplate(row pgx.Row) (*entity.RoutineTemplate, error) {
	var (
		tpl         entity.RoutineTemplate
		rule, slots []byte
	)
	err := row.Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Description, &tpl.Category, &rule, &tpl.Sequence,
		&tpl.SequencePosition, &tpl.IsFlexible, &slots, &tpl.Makeup, &tpl.Active,
		&tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err = sonic.Unmarshal(rule, &tpl.RepeatRule); err != nil {
		return nil, errors.New("unmarshalling repeat rule error: " + err.Error())
	}
	if len(slots) > 0 {
		if err = sonic.Unmarshal(slots, &tpl.PreferredSlots); err != nil {
			return nil, errors.New("unmarshalling time slots error: " + err.Error())
		}
	}
	return &tpl, nil
}

func (rr *RoutinesRepository) GetTemplateByID(ctx context.Context, id uuid.UUID) (*entity.RoutineTemplate, error) {
	row := rr.conn.QueryRow(ctx, `SELECT `+templateColumns+` FROM routine_templates WHERE id = $1;`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrTemplateNotFound
		}
		return nil, errors.New("getting template by id error: " + err.Error())
	}
	return tpl, nil
}

func (rr *RoutinesRepository) GetTemplatesByUserID(ctx context.Context, uid uuid.UUID, activeOnly bool) ([]*entity.RoutineTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM routine_templates WHERE user_id = $1`
	if activeOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY created_at DESC;`
	rows, err := rr.conn.Query(ctx, query, uid)
	if err != nil {
		return nil, errors.New("getting templates by uid error: " + err.Error())
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func (rr *RoutinesRepository) GetActiveTemplates(ctx context.Context) ([]*entity.RoutineTemplate, error) {
	rows, err := rr.conn.Query(ctx, `SELECT `+templateColumns+` FROM routine_templates
		WHERE active = TRUE ORDER BY created_at;`)
	if err != nil {
		return nil, errors.New("getting active templates error: " + err.Error())
	}
	defer rows.Close()
	return collectTemplates(rows)
}

func collectTemplates(rows pgx.Rows) ([]*entity.RoutineTemplate, error) {
	templates := make([]*entity.RoutineTemplate, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.New("template row parsing error: " + err.Error())
		}
		templates = append(templates, tpl)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected template rows error: " + rows.Err().Error())
	}
	return templates, nil
}

func (rr *RoutinesRepository) UpdateTemplate(ctx context.Context, tpl *entity.RoutineTemplate) error {
	rule, err := sonic.Marshal(tpl.RepeatRule)
	if err != nil {
		return errors.New("marshalling repeat rule error: " + err.Error())
	}
	slots, err := sonic.Marshal(tpl.PreferredSlots)
	if err != nil {
		return errors.New("marshalling time slots error: " + err.Error())
	}
	ct, err := rr.conn.Exec(ctx, `UPDATE routine_templates SET name = $1, description = $2, category = $3,
		repeat_rule = $4, sequence = $5, sequence_position = $6, is_flexible = $7,
		preferred_time_slots = $8, makeup_strategy = $9, active = $10, updated_at = NOW()
		WHERE id = $11;`,
		tpl.Name, tpl.Description, tpl.Category, rule, tpl.Sequence, tpl.SequencePosition,
		tpl.IsFlexible, slots, tpl.Makeup, tpl.Active, tpl.ID,
	)
	if err != nil {
		return errors.New("error updating template: " + err.Error())
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrTemplateNotFound
	}
	return nil
}

func (rr *RoutinesRepository) CreateInstance(ctx context.Context, inst *entity.RoutineInstance) error {
	if inst == nil {
		return errors.New("instance is nil")
	}
	_, err := rr.conn.Exec(ctx, `INSERT INTO routine_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`,
		inst.ID, inst.TemplateID, inst.UserID, inst.PeriodDate, inst.ScheduledAt, inst.SequenceItem,
		inst.Carried, inst.Status, inst.EventID, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return errors.New("creating routine instance db error: " + err.Error())
	}
	return nil
}

func scanInstance(row pgx.Row) (*entity.RoutineInstance, error) {
	var inst entity.RoutineInstance
	err := row.Scan(&inst.ID, &inst.TemplateID, &inst.UserID, &inst.PeriodDate, &inst.ScheduledAt,
		&inst.SequenceItem, &inst.Carried, &inst.Status, &inst.EventID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (rr *RoutinesRepository) GetInstanceByID(ctx context.Context, id uuid.UUID) (*entity.RoutineInstance, error) {
	row := rr.conn.QueryRow(ctx, `SELECT `+instanceColumns+` FROM routine_instances WHERE id = $1;`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrInstanceNotFound
		}
		return nil, errors.New("getting instance by id error: " + err.Error())
	}
	return inst, nil
}

func (rr *RoutinesRepository) GetInstancesByTemplate(ctx context.Context, templateID uuid.UUID, from, to time.Time) ([]*entity.RoutineInstance, error) {
	rows, err := rr.conn.Query(ctx, `SELECT `+instanceColumns+` FROM routine_instances
		WHERE template_id = $1 AND period_date >= $2 AND period_date <= $3 ORDER BY period_date;`,
		templateID, from, to)
	if err != nil {
		return nil, errors.New("getting instances by template error: " + err.Error())
	}
	defer rows.Close()
	return collectInstances(rows)
}

func (rr *RoutinesRepository) GetInstancesByUser(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]*entity.RoutineInstance, error) {
	rows, err := rr.conn.Query(ctx, `SELECT `+instanceColumns+` FROM routine_instances
		WHERE user_id = $1 AND period_date >= $2 AND period_date <= $3 ORDER BY period_date;`,
		uid, from, to)
	if err != nil {
		return nil, errors.New("getting instances by uid error: " + err.Error())
	}
	defer rows.Close()
	return collectInstances(rows)
}

func collectInstances(rows pgx.Rows) ([]*entity.RoutineInstance, error) {
	instances := make([]*entity.RoutineInstance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, errors.New("instance row parsing error: " + err.Error())
		}
		instances = append(instances, inst)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected instance rows error: " + rows.Err().Error())
	}
	return instances, nil
}

func (rr *RoutinesRepository) RegularInstanceExists(ctx context.Context, templateID uuid.UUID, period time.Time) (bool, error) {
	var exists bool
	row := rr.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM routine_instances
		WHERE template_id = $1 AND period_date = $2 AND carried = FALSE AND status != 'cancelled');`,
		templateID, period)
	if err := row.Scan(&exists); err != nil {
		return false, errors.New("inspecting if instance exists error: " + err.Error())
	}
	return exists, nil
}

func (rr *RoutinesRepository) UpdateInstance(ctx context.Context, inst *entity.RoutineInstance) error {
	ct, err := rr.conn.Exec(ctx, `UPDATE routine_instances SET scheduled_at = $1, sequence_item = $2,
		carried = $3, status = $4, event_id = $5, updated_at = NOW() WHERE id = $6;`,
		inst.ScheduledAt, inst.SequenceItem, inst.Carried, inst.Status, inst.EventID, inst.ID,
	)
	if err != nil {
		return errors.New("error updating instance: " + err.Error())
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrInstanceNotFound
	}
	return nil
}

func (rr *RoutinesRepository) GetPendingElapsed(ctx context.Context, cutoff time.Time) ([]*entity.RoutineInstance, error) {
	rows, err := rr.conn.Query(ctx, `SELECT `+instanceColumns+` FROM routine_instances
		WHERE status IN ('generated', 'scheduled') AND period_date < $1 ORDER BY period_date;`, cutoff)
	if err != nil {
		return nil, errors.New("getting elapsed instances error: " + err.Error())
	}
	defer rows.Close()
	return collectInstances(rows)
}

func (rr *RoutinesRepository) CreateExecution(ctx context.Context, exec *entity.RoutineExecution) error {
	if exec == nil {
		return errors.New("execution is nil")
	}
	_, err := rr.conn.Exec(ctx, `INSERT INTO routine_executions (id, instance_id, action, reason, notes, executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		exec.ID, exec.InstanceID, exec.Action, exec.Reason, exec.Notes, exec.ExecutedAt, exec.CreatedAt,
	)
	if err != nil {
		return errors.New("creating routine execution db error: " + err.Error())
	}
	return nil
}

func (rr *RoutinesRepository) GetExecutionsByInstance(ctx context.Context, instanceID uuid.UUID) ([]*entity.RoutineExecution, error) {
	rows, err := rr.conn.Query(ctx, `SELECT id, instance_id, action, reason, notes, executed_at, created_at
		FROM routine_executions WHERE instance_id = $1 ORDER BY created_at DESC;`, instanceID)
	if err != nil {
		return nil, errors.New("getting executions error: " + err.Error())
	}
	defer rows.Close()
	executions := make([]*entity.RoutineExecution, 0, 1)
	for rows.Next() {
		var exec entity.RoutineExecution
		err = rows.Scan(&exec.ID, &exec.InstanceID, &exec.Action, &exec.Reason, &exec.Notes,
			&exec.ExecutedAt, &exec.CreatedAt)
		if err != nil {
			return nil, errors.New("execution row parsing error: " + err.Error())
		}
		executions = append(executions, &exec)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected execution rows error: " + rows.Err().Error())
	}
	return executions, nil
}

func (rr *RoutinesRepository) CountExecutionsByInstance(ctx context.Context, instanceID uuid.UUID) (int, error) {
	var count int
	row := rr.conn.QueryRow(ctx, `SELECT COUNT(*) FROM routine_executions WHERE instance_id = $1;`, instanceID)
	if err := row.Scan(&count); err != nil {
		return 0, errors.New("error counting executions: " + err.Error())
	}
	return count, nil
}
