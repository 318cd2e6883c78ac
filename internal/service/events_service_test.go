package service_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	errorvalues "github.com/limbo/cadence/internal/error_values"
	"github.com/limbo/cadence/internal/repository"
	"github.com/limbo/cadence/internal/service"
	"github.com/limbo/cadence/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	service.InitValidator()
	os.Exit(m.Run())
}

type mockState int

const (
	stateSuccess mockState = iota
	stateDBError
	stateCaptureError
)

// Variables for tests
var (
	userID  = uuid.New()
	baseDay = time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// eventsRepoMock keeps events in memory so round trips through the service
// observe real state.
type eventsRepoMock struct {
	state         mockState
	events        map[uuid.UUID]*entity.Event
	windowQueries int
}

func newEventsRepoMock() *eventsRepoMock {
	return &eventsRepoMock{events: make(map[uuid.UUID]*entity.Event)}
}

func (m *eventsRepoMock) Create(ctx context.Context, event *entity.Event) error {
	if m.state == stateDBError {
		return errors.New("db error")
	}
	stored := *event
	m.events[event.ID] = &stored
	return nil
}

func (m *eventsRepoMock) GetByID(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	if m.state == stateDBError {
		return nil, errors.New("db error")
	}
	event, ok := m.events[id]
	if !ok {
		return nil, errorvalues.ErrEventNotFound
	}
	clone := *event
	return &clone, nil
}

func (m *eventsRepoMock) GetByUserID(ctx context.Context, uid uuid.UUID, limit, offset int) ([]*entity.Event, error) {
	if m.state == stateDBError {
		return nil, errors.New("db error")
	}
	result := make([]*entity.Event, 0)
	for _, event := range m.events {
		if event.UserID == uid {
			clone := *event
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *eventsRepoMock) GetOpenInWindow(ctx context.Context, uid uuid.UUID, from, to time.Time) ([]*entity.Event, error) {
	m.windowQueries++
	if m.state == stateDBError {
		return nil, errors.New("db error")
	}
	result := make([]*entity.Event, 0)
	for _, event := range m.events {
		if event.UserID != uid || event.Terminal() {
			continue
		}
		iv, ok := event.EffectiveInterval()
		if !ok {
			continue
		}
		if iv.Start.Before(to) && iv.End.After(from) {
			clone := *event
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *eventsRepoMock) Update(ctx context.Context, event *entity.Event) error {
	if m.state == stateDBError {
		return errors.New("db error")
	}
	if _, ok := m.events[event.ID]; !ok {
		return errorvalues.ErrEventNotFound
	}
	stored := *event
	m.events[event.ID] = &stored
	return nil
}

func (m *eventsRepoMock) Delete(ctx context.Context, id uuid.UUID) error {
	if m.state == stateDBError {
		return errors.New("db error")
	}
	if _, ok := m.events[id]; !ok {
		return errorvalues.ErrEventNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *eventsRepoMock) ApplyRevert(ctx context.Context, ops []repository.RevertOp) error {
	if m.state == stateDBError {
		return errors.New("db error")
	}
	for _, op := range ops {
		switch op.Kind {
		case "delete":
			if _, ok := m.events[op.EventID]; !ok {
				return errorvalues.ErrRevertFailed
			}
			delete(m.events, op.EventID)
		case "restore":
			stored := *op.State
			m.events[op.EventID] = &stored
		}
	}
	return nil
}

// snapshotManagerMock records captures instead of persisting them.
type snapshotManagerMock struct {
	state    mockState
	captured []entity.EventChange
	triggers []string
}

func (m *snapshotManagerMock) Capture(ctx context.Context, uid uuid.UUID, trigger string, changes []entity.EventChange) (*entity.Snapshot, error) {
	if m.state == stateCaptureError {
		return nil, errors.New("capture error")
	}
	m.captured = append(m.captured, changes...)
	m.triggers = append(m.triggers, trigger)
	return &entity.Snapshot{ID: uuid.New(), UserID: uid, Trigger: trigger, Changes: changes}, nil
}

func (m *snapshotManagerMock) List(ctx context.Context, uid uuid.UUID, pagination service.PaginationOpts) ([]*entity.Snapshot, error) {
	return nil, nil
}

func (m *snapshotManagerMock) Revert(ctx context.Context, snapshotID, uid uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *snapshotManagerMock) UndoLast(ctx context.Context, uid uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type parserMock struct {
	iv         entity.Interval
	confidence float64
	err        error
}

func (m *parserMock) Parse(text string, ref time.Time, loc *time.Location) (entity.Interval, float64, error) {
	return m.iv, m.confidence, m.err
}

func newEventsService(repo *eventsRepoMock, snaps *snapshotManagerMock, parser service.TimeParserI) *service.EventsService {
	return service.NewEventsService(repo, snaps, parser, service.NewUserLocks())
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	t.Run("schedule with both bounds", func(t *testing.T) {
		repo := newEventsRepoMock()
		snaps := &snapshotManagerMock{}
		s := newEventsService(repo, snaps, nil)

		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "dentist",
			StartTime: timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(10*time.Hour + 30*time.Minute)),
		})
		require.NoError(t, err)
		assert.Equal(t, entity.EventSchedule, res.Event.EventType)
		assert.Equal(t, entity.StatusPending, res.Event.Status)
		assert.Equal(t, 90, *res.Event.Duration)
		assert.Equal(t, entity.DurationUserExact, res.Event.DurationSource)
		assert.Equal(t, entity.EnergyMedium, res.Event.EnergyRequired)
		assert.Empty(t, res.Conflicts)
		assert.Len(t, snaps.captured, 1)
		assert.Equal(t, entity.ActionCreate, snaps.captured[0].Action)
	})
	t.Run("deadline from end only", func(t *testing.T) {
		repo := newEventsRepoMock()
		s := newEventsService(repo, &snapshotManagerMock{}, nil)

		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:   "submit report",
			EndTime: timePtr(baseDay.Add(17 * time.Hour)),
		})
		require.NoError(t, err)
		assert.Equal(t, entity.EventDeadline, res.Event.EventType)
		assert.Equal(t, entity.DurationDefault, res.Event.DurationSource)
		assert.Equal(t, 60, *res.Event.Duration)
	})
	t.Run("floating with estimate", func(t *testing.T) {
		repo := newEventsRepoMock()
		s := newEventsService(repo, &snapshotManagerMock{}, nil)

		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:              "review slides",
			EstimatedDuration:  intPtr(45),
			EstimateConfidence: 0.8,
		})
		require.NoError(t, err)
		assert.Equal(t, entity.EventFloating, res.Event.EventType)
		assert.Equal(t, 45, *res.Event.Duration)
		assert.Equal(t, entity.DurationAIEstimate, res.Event.DurationSource)
		assert.Equal(t, 0.8, res.Event.DurationConfidence)
	})
	t.Run("missing title", func(t *testing.T) {
		s := newEventsService(newEventsRepoMock(), &snapshotManagerMock{}, nil)
		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			StartTime: timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(10 * time.Hour)),
		})
		assert.Error(t, err)
	})
	t.Run("inverted range", func(t *testing.T) {
		s := newEventsService(newEventsRepoMock(), &snapshotManagerMock{}, nil)
		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "broken",
			StartTime: timePtr(baseDay.Add(10 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(9 * time.Hour)),
		})
		assert.ErrorIs(t, err, errorvalues.ErrInvalidTimeRange)
	})
	t.Run("no times no duration", func(t *testing.T) {
		s := newEventsService(newEventsRepoMock(), &snapshotManagerMock{}, nil)
		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{Title: "limbo"})
		assert.ErrorIs(t, err, errorvalues.ErrInvalidTimeRange)
	})
	t.Run("capture failure rolls event back", func(t *testing.T) {
		repo := newEventsRepoMock()
		snaps := &snapshotManagerMock{state: stateCaptureError}
		s := newEventsService(repo, snaps, nil)

		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "doomed",
			StartTime: timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(10 * time.Hour)),
		})
		assert.Error(t, err)
		assert.Empty(t, repo.events)
	})
}

func TestCreateEventTimeHint(t *testing.T) {
	ctx := context.Background()
	repo := newEventsRepoMock()
	parser := &parserMock{
		iv:         entity.Interval{Start: baseDay.Add(15 * time.Hour), End: baseDay.Add(16 * time.Hour)},
		confidence: 0.9,
	}
	s := newEventsService(repo, &snapshotManagerMock{}, parser)

	res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
		Title:    "call mom",
		TimeHint: "tomorrow 3pm",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Event.StartTime)
	assert.Equal(t, baseDay.Add(15*time.Hour), *res.Event.StartTime)
	assert.Equal(t, entity.EventSchedule, res.Event.EventType)

	t.Run("unparsed hint keeps event untimed", func(t *testing.T) {
		s := newEventsService(newEventsRepoMock(), &snapshotManagerMock{}, &parserMock{err: errors.New("no match")})
		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:    "sometime",
			TimeHint: "whenever",
			Duration: intPtr(30),
		})
		require.NoError(t, err)
		assert.Nil(t, res.Event.StartTime)
		assert.Equal(t, entity.EventFloating, res.Event.EventType)
	})
}

func TestCreateEventConflicts(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*eventsRepoMock, *service.EventsService) {
		t.Helper()
		repo := newEventsRepoMock()
		s := newEventsService(repo, &snapshotManagerMock{}, nil)
		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "standup",
			StartTime: timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(10 * time.Hour)),
		})
		require.NoError(t, err)
		return repo, s
	}

	t.Run("unacknowledged schedule overlap refused", func(t *testing.T) {
		repo, s := seed(t)
		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "dentist",
			StartTime: timePtr(baseDay.Add(9*time.Hour + 30*time.Minute)),
			EndTime:   timePtr(baseDay.Add(11 * time.Hour)),
		})
		assert.ErrorIs(t, err, errorvalues.ErrScheduleOverlap)
		require.NotNil(t, res)
		assert.Len(t, res.Conflicts, 1)
		assert.Len(t, repo.events, 1)
	})
	t.Run("acknowledged overlap lands with advisory list", func(t *testing.T) {
		repo, s := seed(t)
		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:                "dentist",
			StartTime:            timePtr(baseDay.Add(9*time.Hour + 30*time.Minute)),
			EndTime:              timePtr(baseDay.Add(11 * time.Hour)),
			AcknowledgeConflicts: true,
		})
		require.NoError(t, err)
		assert.Len(t, res.Conflicts, 1)
		assert.Len(t, repo.events, 2)
	})
	t.Run("non-schedule overlap is advisory", func(t *testing.T) {
		repo, s := seed(t)
		res, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "reading",
			EventType: entity.EventHabit,
			StartTime: timePtr(baseDay.Add(9*time.Hour + 30*time.Minute)),
			Duration:  intPtr(30),
		})
		require.NoError(t, err)
		assert.Len(t, res.Conflicts, 1)
		assert.Len(t, repo.events, 2)
	})
	t.Run("require conflict free", func(t *testing.T) {
		repo, s := seed(t)
		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:               "focus block",
			EventType:           entity.EventFloating,
			StartTime:           timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:             timePtr(baseDay.Add(12 * time.Hour)),
			RequireConflictFree: true,
		})
		assert.ErrorIs(t, err, errorvalues.ErrConflictsPresent)
		assert.Len(t, repo.events, 1)
	})
	t.Run("refusal classifies from one window query", func(t *testing.T) {
		repo, s := seed(t)
		repo.windowQueries = 0
		_, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:     "dentist",
			StartTime: timePtr(baseDay.Add(9*time.Hour + 30*time.Minute)),
			EndTime:   timePtr(baseDay.Add(11 * time.Hour)),
		})
		assert.ErrorIs(t, err, errorvalues.ErrScheduleOverlap)
		assert.Equal(t, 1, repo.windowQueries)
	})
	t.Run("update excludes itself but keeps neighbours", func(t *testing.T) {
		repo, s := seed(t)
		second, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:                "review",
			StartTime:            timePtr(baseDay.Add(9*time.Hour + 30*time.Minute)),
			EndTime:              timePtr(baseDay.Add(10*time.Hour + 30*time.Minute)),
			AcknowledgeConflicts: true,
		})
		require.NoError(t, err)

		res, err := s.UpdateEvent(ctx, second.Event.ID, userID, &service.UpdateEventRequest{
			StartTime: timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(10 * time.Hour)),
		})
		require.NoError(t, err)
		require.Len(t, res.Conflicts, 1)
		assert.Equal(t, "standup", res.Conflicts[0].Title)
		assert.Len(t, repo.events, 2)
	})
	t.Run("another user's calendar is invisible", func(t *testing.T) {
		_, s := seed(t)
		res, err := s.CreateEvent(ctx, uuid.New(), &service.CreateEventRequest{
			Title:     "someone else",
			StartTime: timePtr(baseDay.Add(9 * time.Hour)),
			EndTime:   timePtr(baseDay.Add(10 * time.Hour)),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Conflicts)
	})
}

func TestUpdateEvent(t *testing.T) {
	ctx := context.Background()
	repo := newEventsRepoMock()
	snaps := &snapshotManagerMock{}
	s := newEventsService(repo, snaps, nil)

	created, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
		Title:              "draft",
		EstimatedDuration:  intPtr(45),
		EstimateConfidence: 0.7,
	})
	require.NoError(t, err)
	eventID := created.Event.ID

	t.Run("user adjusts estimated duration", func(t *testing.T) {
		res, err := s.UpdateEvent(ctx, eventID, userID, &service.UpdateEventRequest{
			Duration: intPtr(60),
		})
		require.NoError(t, err)
		assert.Equal(t, 60, *res.Event.Duration)
		assert.Equal(t, entity.DurationUserAdjusted, res.Event.DurationSource)
		assert.Equal(t, 1.0, res.Event.DurationConfidence)
		require.NotNil(t, res.Event.AIOriginalEstimate)
		assert.Equal(t, 45, *res.Event.AIOriginalEstimate)
	})
	t.Run("title only keeps provenance", func(t *testing.T) {
		title := "final draft"
		res, err := s.UpdateEvent(ctx, eventID, userID, &service.UpdateEventRequest{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "final draft", res.Event.Title)
		assert.Equal(t, entity.DurationUserAdjusted, res.Event.DurationSource)
	})
	t.Run("wrong owner", func(t *testing.T) {
		title := "hijack"
		_, err := s.UpdateEvent(ctx, eventID, uuid.New(), &service.UpdateEventRequest{Title: &title})
		assert.ErrorIs(t, err, errorvalues.ErrWrongOwner)
	})
	t.Run("not found", func(t *testing.T) {
		title := "ghost"
		_, err := s.UpdateEvent(ctx, uuid.New(), userID, &service.UpdateEventRequest{Title: &title})
		assert.ErrorIs(t, err, errorvalues.ErrEventNotFound)
	})
}

func TestEventStatusTransitions(t *testing.T) {
	ctx := context.Background()
	repo := newEventsRepoMock()
	s := newEventsService(repo, &snapshotManagerMock{}, nil)

	created, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
		Title:    "workout",
		Duration: intPtr(40),
	})
	require.NoError(t, err)
	eventID := created.Event.ID

	t.Run("complete then complete again", func(t *testing.T) {
		event, err := s.CompleteEvent(ctx, eventID, userID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, event.Status)

		event, err = s.CompleteEvent(ctx, eventID, userID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, event.Status)
	})
	t.Run("cancel is terminal for complete", func(t *testing.T) {
		other, err := s.CreateEvent(ctx, userID, &service.CreateEventRequest{
			Title:    "nap",
			Duration: intPtr(20),
		})
		require.NoError(t, err)
		require.NoError(t, s.DeleteEvent(ctx, other.Event.ID, userID, ""))

		_, err = s.CompleteEvent(ctx, other.Event.ID, userID)
		assert.ErrorIs(t, err, errorvalues.ErrInvalidStatus)

		// Deleting again is a no-op.
		assert.NoError(t, s.DeleteEvent(ctx, other.Event.ID, userID, ""))
	})
	t.Run("delete keeps the row", func(t *testing.T) {
		stored, err := repo.GetByID(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, stored.Status)
	})
}

func TestCheckConflicts(t *testing.T) {
	ctx := context.Background()
	s := newEventsService(newEventsRepoMock(), &snapshotManagerMock{}, nil)

	_, err := s.CheckConflicts(ctx, userID, entity.Interval{
		Start: baseDay.Add(10 * time.Hour),
		End:   baseDay.Add(9 * time.Hour),
	})
	assert.ErrorIs(t, err, errorvalues.ErrInvalidTimeRange)

	overlaps, err := s.CheckConflicts(ctx, userID, entity.Interval{
		Start: baseDay.Add(9 * time.Hour),
		End:   baseDay.Add(10 * time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, overlaps)
}
