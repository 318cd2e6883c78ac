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

type SnapshotsRepository struct {
	conn PgConnection
}

func NewSnapshotsRepo(cfg DBConfig) *SnapshotsRepository {
	pool, err := pgxpool.New(context.Background(), cfg.ConnString())
	if err != nil {
		log.Fatal("creating connection for snapshotsRepo error: " + err.Error())
	}
	err = pool.Ping(context.Background())
	if err != nil {
		log.Fatal("error while pinging connection for snapshotsRepo: " + err.Error())
	}
	cleanup.Register(&cleanup.Job{
		Name: "closing pgxpool",
		F: func() error {
			pool.Close()
			return nil
		},
	})
	return &SnapshotsRepository{
		conn: pool,
	}
}

func NewSnapshotsRepoWithConn(conn PgConnection) *SnapshotsRepository {
	err := conn.Ping(context.Background())
	if err != nil {
		log.Fatal("error while pinging connection for snapshotsRepo: " + err.Error())
	}
	return &SnapshotsRepository{
		conn: conn,
	}
}

func marshalState(e *entity.Event) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	return sonic.Marshal(e)
}

func unmarshalState(raw []byte) (*entity.Event, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var e entity.Event
	if err := sonic.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (sr *SnapshotsRepository) Create(ctx context.Context, snap *entity.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	tx, err := sr.conn.Begin(ctx)
	if err != nil {
		return errors.New("opening snapshot transaction error: " + err.Error())
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `INSERT INTO snapshots (id, user_id, trigger_message, is_reverted, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6);`,
		snap.ID, snap.UserID, snap.Trigger, snap.IsReverted, snap.CreatedAt, snap.ExpiresAt,
	)
	if err != nil {
		return errors.New("creating snapshot db error: " + err.Error())
	}
	for seq, change := range snap.Changes {
		before, err := marshalState(change.Before)
		if err != nil {
			return errors.New("marshalling before state error: " + err.Error())
		}
		after, err := marshalState(change.After)
		if err != nil {
			return errors.New("marshalling after state error: " + err.Error())
		}
		_, err = tx.Exec(ctx, `INSERT INTO event_changes (snapshot_id, user_id, seq, event_id, action, before_state, after_state)
			VALUES ($1, $2, $3, $4, $5, $6, $7);`,
			snap.ID, snap.UserID, seq, change.EventID, change.Action, before, after,
		)
		if err != nil {
			return errors.New("creating event change db error: " + err.Error())
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.New("committing snapshot error: " + err.Error())
	}
	return nil
}

func (sr *SnapshotsRepository) loadChanges(ctx context.Context, snapshotID uuid.UUID) ([]entity.EventChange, error) {
	rows, err := sr.conn.Query(ctx, `SELECT event_id, action, before_state, after_state
		FROM event_changes WHERE snapshot_id = $1 ORDER BY seq;`, snapshotID)
	if err != nil {
		return nil, errors.New("getting event changes error: " + err.Error())
	}
	defer rows.Close()
	changes := make([]entity.EventChange, 0, 2)
	for rows.Next() {
		var (
			change        entity.EventChange
			before, after []byte
		)
		if err = rows.Scan(&change.EventID, &change.Action, &before, &after); err != nil {
			return nil, errors.New("event change row parsing error: " + err.Error())
		}
		if change.Before, err = unmarshalState(before); err != nil {
			return nil, errors.New("unmarshalling before state error: " + err.Error())
		}
		if change.After, err = unmarshalState(after); err != nil {
			return nil, errors.New("unmarshalling after state error: " + err.Error())
		}
		changes = append(changes, change)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected event change rows error: " + rows.Err().Error())
	}
	return changes, nil
}

func scanSnapshot(row pgx.Row) (*entity.Snapshot, error) {
	var snap entity.Snapshot
	err := row.Scan(&snap.ID, &snap.UserID, &snap.Trigger, &snap.IsReverted, &snap.RevertedAt,
		&snap.CreatedAt, &snap.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (sr *SnapshotsRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Snapshot, error) {
	row := sr.conn.QueryRow(ctx, `SELECT id, user_id, trigger_message, is_reverted, reverted_at, created_at, expires_at
		FROM snapshots WHERE id = $1;`, id)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrSnapshotNotFound
		}
		return nil, errors.New("getting snapshot by id error: " + err.Error())
	}
	snap.Changes, err = sr.loadChanges(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetByUserID returns snapshot headers only, changes stay unloaded.
func (sr *SnapshotsRepository) GetByUserID(ctx context.Context, uid uuid.UUID, limit, offset int) ([]*entity.Snapshot, error) {
	rows, err := sr.conn.Query(ctx, `SELECT id, user_id, trigger_message, is_reverted, reverted_at, created_at, expires_at
		FROM snapshots WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3;`, uid, limit, offset)
	if err != nil {
		return nil, errors.New("getting snapshots by uid error: " + err.Error())
	}
	defer rows.Close()
	snaps := make([]*entity.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.New("snapshot row parsing error: " + err.Error())
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, errors.New("unexpected snapshot rows error: " + rows.Err().Error())
	}
	return snaps, nil
}

func (sr *SnapshotsRepository) GetLatestActive(ctx context.Context, uid uuid.UUID) (*entity.Snapshot, error) {
	row := sr.conn.QueryRow(ctx, `SELECT id, user_id, trigger_message, is_reverted, reverted_at, created_at, expires_at
		FROM snapshots WHERE user_id = $1 AND is_reverted = FALSE AND expires_at > NOW()
		ORDER BY created_at DESC LIMIT 1;`, uid)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrSnapshotNotFound
		}
		return nil, errors.New("getting latest snapshot error: " + err.Error())
	}
	snap.Changes, err = sr.loadChanges(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (sr *SnapshotsRepository) MarkReverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	ct, err := sr.conn.Exec(ctx, `UPDATE snapshots SET is_reverted = TRUE, reverted_at = $1 WHERE id = $2;`, at, id)
	if err != nil {
		return errors.New("marking snapshot reverted error: " + err.Error())
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrSnapshotNotFound
	}
	return nil
}

func (sr *SnapshotsRepository) DeleteOldest(ctx context.Context, uid uuid.UUID, keep int) error {
	_, err := sr.conn.Exec(ctx, `DELETE FROM snapshots WHERE user_id = $1 AND id NOT IN (
		SELECT id FROM snapshots WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2);`, uid, keep)
	if err != nil {
		return errors.New("deleting old snapshots error: " + err.Error())
	}
	return nil
}
