package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/repository"
	"github.com/limbo/cadence/pkg/entity"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	templateID = uuid.New()
	instanceID = uuid.New()
)

var templateCols = []string{
	"id", "user_id", "name", "description", "category", "repeat_rule", "sequence",
	"sequence_position", "is_flexible", "preferred_time_slots", "makeup_strategy", "active",
	"created_at", "updated_at",
}

var instanceCols = []string{
	"id", "template_id", "user_id", "period_date", "scheduled_at", "sequence_item",
	"carried", "status", "event_id", "created_at", "updated_at",
}

func testTemplate() *entity.RoutineTemplate {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	return &entity.RoutineTemplate{
		ID:     templateID,
		UserID: userID,
		Name:   "morning run",
		RepeatRule: entity.RepeatRule{
			Frequency: entity.RepeatWeekly,
			Weekdays:  []int{0, 2, 4},
			At:        "07:00",
		},
		Category:       entity.CategoryHealth,
		PreferredSlots: []entity.TimeSlot{{Start: "07:00", End: "08:00"}},
		Makeup:         entity.MakeupSkip,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func templateRow(t *testing.T, tpl *entity.RoutineTemplate) *pgxmock.Rows {
	t.Helper()
	rule, err := sonic.Marshal(tpl.RepeatRule)
	require.NoError(t, err)
	slots, err := sonic.Marshal(tpl.PreferredSlots)
	require.NoError(t, err)
	return pgxmock.NewRows(templateCols).AddRow(
		tpl.ID, tpl.UserID, tpl.Name, tpl.Description, tpl.Category, rule, tpl.Sequence,
		tpl.SequencePosition, tpl.IsFlexible, slots, tpl.Makeup, tpl.Active,
		tpl.CreatedAt, tpl.UpdatedAt,
	)
}

func testInstance() *entity.RoutineInstance {
	now := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	period := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	return &entity.RoutineInstance{
		ID:          instanceID,
		TemplateID:  templateID,
		UserID:      userID,
		PeriodDate:  period,
		ScheduledAt: &now,
		Status:      entity.InstanceScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func instanceRow(inst *entity.RoutineInstance) *pgxmock.Rows {
	return pgxmock.NewRows(instanceCols).AddRow(
		inst.ID, inst.TemplateID, inst.UserID, inst.PeriodDate, inst.ScheduledAt, inst.SequenceItem,
		inst.Carried, inst.Status, inst.EventID, inst.CreatedAt, inst.UpdatedAt,
	)
}

func TestCreateTemplate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	tpl := testTemplate()
	ctx := context.Background()
	query := regexp.QuoteMeta(`INSERT INTO routine_templates (`)
	t.Run("successfully created", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		assert.NoError(t, repo.CreateTemplate(ctx, tpl))
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnError(errors.New("db error"))
		assert.Error(t, repo.CreateTemplate(ctx, tpl))
	})
	t.Run("nil template", func(t *testing.T) {
		assert.Error(t, repo.CreateTemplate(ctx, nil))
	})
}

func TestGetTemplateByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	tpl := testTemplate()
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM routine_templates WHERE id = $1;`)
	t.Run("success with decoded rule", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(templateID).WillReturnRows(templateRow(t, tpl))
		got, err := repo.GetTemplateByID(ctx, templateID)
		require.NoError(t, err)
		assert.Equal(t, tpl.Name, got.Name)
		assert.Equal(t, entity.RepeatWeekly, got.RepeatRule.Frequency)
		assert.Equal(t, []int{0, 2, 4}, got.RepeatRule.Weekdays)
		require.Len(t, got.PreferredSlots, 1)
		assert.Equal(t, "07:00", got.PreferredSlots[0].Start)
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(templateID).WillReturnError(pgx.ErrNoRows)
		_, err := repo.GetTemplateByID(ctx, templateID)
		assert.ErrorIs(t, err, errorvalues.ErrTemplateNotFound)
	})
}

func TestGetTemplatesByUserID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	tpl := testTemplate()
	ctx := context.Background()
	t.Run("all templates", func(t *testing.T) {
		query := regexp.QuoteMeta(`FROM routine_templates WHERE user_id = $1 ORDER BY created_at DESC;`)
		mock.ExpectQuery(query).WithArgs(userID).WillReturnRows(templateRow(t, tpl))
		templates, err := repo.GetTemplatesByUserID(ctx, userID, false)
		require.NoError(t, err)
		assert.Len(t, templates, 1)
	})
	t.Run("active only", func(t *testing.T) {
		query := regexp.QuoteMeta(`WHERE user_id = $1 AND active = TRUE ORDER BY created_at DESC;`)
		mock.ExpectQuery(query).WithArgs(userID).WillReturnRows(templateRow(t, tpl))
		templates, err := repo.GetTemplatesByUserID(ctx, userID, true)
		require.NoError(t, err)
		assert.Len(t, templates, 1)
	})
}

func TestUpdateTemplate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	tpl := testTemplate()
	ctx := context.Background()
	query := regexp.QuoteMeta(`UPDATE routine_templates SET`)
	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		assert.NoError(t, repo.UpdateTemplate(ctx, tpl))
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		assert.ErrorIs(t, repo.UpdateTemplate(ctx, tpl), errorvalues.ErrTemplateNotFound)
	})
}

func TestCreateInstance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	inst := testInstance()
	ctx := context.Background()
	query := regexp.QuoteMeta(`INSERT INTO routine_instances (`)
	t.Run("successfully created", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		assert.NoError(t, repo.CreateInstance(ctx, inst))
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnError(errors.New("db error"))
		assert.Error(t, repo.CreateInstance(ctx, inst))
	})
}

func TestGetInstanceByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	inst := testInstance()
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM routine_instances WHERE id = $1;`)
	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(instanceID).WillReturnRows(instanceRow(inst))
		got, err := repo.GetInstanceByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Equal(t, inst.TemplateID, got.TemplateID)
		assert.Equal(t, entity.InstanceScheduled, got.Status)
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(instanceID).WillReturnError(pgx.ErrNoRows)
		_, err := repo.GetInstanceByID(ctx, instanceID)
		assert.ErrorIs(t, err, errorvalues.ErrInstanceNotFound)
	})
}

func TestRegularInstanceExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	ctx := context.Background()
	period := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`carried = FALSE AND status != 'cancelled'`)
	t.Run("exists", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(templateID, period).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		exists, err := repo.RegularInstanceExists(ctx, templateID, period)
		require.NoError(t, err)
		assert.True(t, exists)
	})
	t.Run("does not exist", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(templateID, period).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		exists, err := repo.RegularInstanceExists(ctx, templateID, period)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestGetPendingElapsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	inst := testInstance()
	ctx := context.Background()
	cutoff := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`status IN ('generated', 'scheduled') AND period_date < $1`)
	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(cutoff).WillReturnRows(instanceRow(inst))
		instances, err := repo.GetPendingElapsed(ctx, cutoff)
		require.NoError(t, err)
		assert.Len(t, instances, 1)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(cutoff).WillReturnError(errors.New("db error"))
		_, err := repo.GetPendingElapsed(ctx, cutoff)
		assert.Error(t, err)
	})
}

func TestCreateExecution(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	ctx := context.Background()
	exec := &entity.RoutineExecution{
		ID:         uuid.New(),
		InstanceID: instanceID,
		Action:     entity.ExecCompleted,
		ExecutedAt: time.Now().UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	query := regexp.QuoteMeta(`INSERT INTO routine_executions (`)
	t.Run("successfully created", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(exec.ID, exec.InstanceID, exec.Action, exec.Reason, exec.Notes, exec.ExecutedAt, exec.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		assert.NoError(t, repo.CreateExecution(ctx, exec))
	})
	t.Run("nil execution", func(t *testing.T) {
		assert.Error(t, repo.CreateExecution(ctx, nil))
	})
}

func TestCountExecutionsByInstance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRoutinesRepoWithConn(mock)
	ctx := context.Background()
	query := regexp.QuoteMeta(`SELECT COUNT(*) FROM routine_executions WHERE instance_id = $1;`)
	mock.ExpectQuery(query).WithArgs(instanceID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	count, err := repo.CountExecutionsByInstance(ctx, instanceID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
