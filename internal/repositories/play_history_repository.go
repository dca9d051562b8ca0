package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"sync-service/internal/models"
)

const DefaultHistoryLimit = 50

// PlayHistoryRepository abstracts play history persistence.
type PlayHistoryRepository interface {
	Insert(ctx context.Context, rec models.PlayRecord) error
	ListByGroup(ctx context.Context, groupID string, limit int) ([]models.PlayRecord, error)
}

// PlayHistoryRepo is a sqlx implementation of PlayHistoryRepository.
type PlayHistoryRepo struct {
	db *sqlx.DB
}

// NewPlayHistoryRepo constructs a PlayHistoryRepo.
func NewPlayHistoryRepo(db *sqlx.DB) *PlayHistoryRepo {
	return &PlayHistoryRepo{db: db}
}

// playRow mirrors play_history; song is stored as JSON text.
type playRow struct {
	ID          int       `db:"id"`
	GroupID     string    `db:"group_id"`
	QueueItemID string    `db:"queue_item_id"`
	Song        string    `db:"song"`
	AddedBy     string    `db:"added_by"`
	Reason      string    `db:"reason"`
	StartedAt   time.Time `db:"started_at"`
}

// Insert appends a track start.
func (r *PlayHistoryRepo) Insert(ctx context.Context, rec models.PlayRecord) error {
	query := r.db.Rebind(`INSERT INTO play_history (group_id, queue_item_id, song, added_by, reason, started_at) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, rec.GroupID, rec.QueueItemID, string(rec.Song), rec.AddedBy, rec.Reason, rec.StartedAt.UTC())
	return err
}

// ListByGroup returns the most recent plays of a group, newest first.
func (r *PlayHistoryRepo) ListByGroup(ctx context.Context, groupID string, limit int) ([]models.PlayRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []playRow
	query := r.db.Rebind(`SELECT id, group_id, queue_item_id, song, added_by, reason, started_at FROM play_history WHERE group_id=? ORDER BY started_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, groupID, limit); err != nil {
		return nil, err
	}

	out := make([]models.PlayRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.PlayRecord{
			ID:          row.ID,
			GroupID:     row.GroupID,
			QueueItemID: row.QueueItemID,
			Song:        json.RawMessage(row.Song),
			AddedBy:     row.AddedBy,
			Reason:      row.Reason,
			StartedAt:   row.StartedAt.UTC(),
		})
	}
	return out, nil
}

// NoopPlayHistoryRepo is used when no database is configured.
type NoopPlayHistoryRepo struct{}

func (NoopPlayHistoryRepo) Insert(context.Context, models.PlayRecord) error { return nil }

func (NoopPlayHistoryRepo) ListByGroup(context.Context, string, int) ([]models.PlayRecord, error) {
	return []models.PlayRecord{}, nil
}
