package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"
	"github.com/driftwatch/deltasync/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

var entityColumns = []string{
	"entity_type",
	"entity_id",
	"payload",
	"etag",
	"row_version",
	"sync_status",
	"conflict_data",
	"is_deleted",
	"created_at",
	"last_modified_at",
	"last_modified_by",
}

func NewEntityRepo(log logger.Logger, db *DB) domain.EntityRepo {
	return &EntityRepo{
		log: log.With().Str("repo", "entity").Logger(),
		db:  db,
	}
}

type EntityRepo struct {
	log zerolog.Logger
	db  *DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*domain.SyncEntity, error) {
	var e domain.SyncEntity
	var payload string
	var conflictData sql.NullString

	if err := row.Scan(&e.Type, &e.ID, &payload, &e.ETag, &e.RowVersion, &e.SyncStatus,
		&conflictData, &e.IsDeleted, &e.CreatedAt, &e.LastModifiedAt, &e.LastModifiedBy); err != nil {
		return nil, err
	}

	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, errors.Wrap(err, "could not unmarshal entity payload")
		}
	}
	if conflictData.Valid && conflictData.String != "" {
		if err := json.Unmarshal([]byte(conflictData.String), &e.ConflictData); err != nil {
			return nil, errors.Wrap(err, "could not unmarshal conflict data")
		}
	}

	e.CreatedAt = e.CreatedAt.UTC()
	e.LastModifiedAt = e.LastModifiedAt.UTC()

	return &e, nil
}

func marshalPayload(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "could not marshal payload")
	}
	return string(data), nil
}

func marshalConflictData(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "could not marshal conflict data")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func (r *EntityRepo) FindChangedSince(ctx context.Context, entityType string, since time.Time, cursorID string, includeDeleted bool, limit int) ([]domain.SyncEntity, error) {
	qb := r.db.squirrel.Select(entityColumns...).
		From("sync_entity").
		Where(sq.Eq{"entity_type": entityType})

	if cursorID != "" {
		// resume position: strictly after (since, cursorID) in the total order
		qb = qb.Where(sq.Or{
			sq.Gt{"last_modified_at": since},
			sq.And{sq.Eq{"last_modified_at": since}, sq.Gt{"entity_id": cursorID}},
		})
	} else {
		qb = qb.Where(sq.Gt{"last_modified_at": since})
	}

	if !includeDeleted {
		qb = qb.Where(sq.Eq{"is_deleted": false})
	}

	qb = qb.OrderBy("last_modified_at ASC", "entity_id ASC").Limit(uint64(limit))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "could not build query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error().Err(err).Str("entityType", entityType).Msg("could not query changed entities")
		return nil, domain.Transient(errors.Wrap(err, "could not query changed entities"))
	}
	defer rows.Close()

	var entities []domain.SyncEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, domain.Transient(errors.Wrap(err, "could not scan entity"))
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient(errors.Wrap(err, "row iteration error"))
	}

	return entities, nil
}

func (r *EntityRepo) FindConflicted(ctx context.Context, entityTypes []string, limit int) ([]domain.SyncEntity, error) {
	qb := r.db.squirrel.Select(entityColumns...).
		From("sync_entity").
		Where(sq.Eq{"sync_status": domain.SyncStatusConflict}).
		Where("conflict_data IS NOT NULL").
		OrderBy("last_modified_at ASC", "entity_id ASC").
		Limit(uint64(limit))

	if len(entityTypes) > 0 {
		qb = qb.Where(sq.Eq{"entity_type": entityTypes})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "could not build query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error().Err(err).Msg("could not query conflicted entities")
		return nil, domain.Transient(errors.Wrap(err, "could not query conflicted entities"))
	}
	defer rows.Close()

	var entities []domain.SyncEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, domain.Transient(errors.Wrap(err, "could not scan entity"))
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient(errors.Wrap(err, "row iteration error"))
	}

	return entities, nil
}

func (r *EntityRepo) CountByType(ctx context.Context) (map[string]int64, error) {
	query, args, err := r.db.squirrel.Select("entity_type", "COUNT(*)").
		From("sync_entity").
		Where(sq.Eq{"is_deleted": false}).
		GroupBy("entity_type").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "could not build query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Transient(errors.Wrap(err, "could not count entities"))
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var entityType string
		var count int64
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, domain.Transient(errors.Wrap(err, "could not scan count"))
		}
		counts[entityType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient(errors.Wrap(err, "row iteration error"))
	}

	return counts, nil
}

func (r *EntityRepo) DeleteTombstonesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := r.db.squirrel.Delete("sync_entity").
		Where(sq.Eq{"is_deleted": true}).
		Where(sq.Lt{"last_modified_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "could not build query")
	}

	result, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error().Err(err).Msg("could not delete tombstones")
		return 0, domain.Transient(errors.Wrap(err, "could not delete tombstones"))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "could not read rows affected")
	}

	return deleted, nil
}

func (r *EntityRepo) Begin(ctx context.Context) (domain.EntityTx, error) {
	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("could not begin transaction")
		return nil, domain.Transient(errors.Wrap(err, "could not begin transaction"))
	}

	return &EntityTx{
		log:      r.log,
		tx:       tx,
		squirrel: r.db.squirrel,
	}, nil
}

type EntityTx struct {
	log      zerolog.Logger
	tx       *sql.Tx
	squirrel sq.StatementBuilderType
}

func (t *EntityTx) FindByID(ctx context.Context, entityType, id string) (*domain.SyncEntity, error) {
	query, args, err := t.squirrel.Select(entityColumns...).
		From("sync_entity").
		Where(sq.Eq{"entity_type": entityType, "entity_id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "could not build query")
	}

	row := t.tx.QueryRowContext(ctx, query, args...)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "could not load entity")
	}

	return e, nil
}

func (t *EntityTx) Insert(ctx context.Context, e *domain.SyncEntity) error {
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return err
	}
	conflictData, err := marshalConflictData(e.ConflictData)
	if err != nil {
		return err
	}

	query, args, err := t.squirrel.Insert("sync_entity").
		Columns(entityColumns...).
		Values(e.Type, e.ID, payload, e.ETag, e.RowVersion, e.SyncStatus, conflictData,
			e.IsDeleted, e.CreatedAt.UTC(), e.LastModifiedAt.UTC(), e.LastModifiedBy).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "could not build query")
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		t.log.Error().Err(err).Str("entityType", e.Type).Str("entityID", e.ID).Msg("could not insert entity")
		return errors.Wrap(err, "could not insert entity")
	}

	return nil
}

func (t *EntityTx) Update(ctx context.Context, e *domain.SyncEntity) error {
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return err
	}
	conflictData, err := marshalConflictData(e.ConflictData)
	if err != nil {
		return err
	}

	query, args, err := t.squirrel.Update("sync_entity").
		Set("payload", payload).
		Set("etag", e.ETag).
		Set("row_version", e.RowVersion).
		Set("sync_status", e.SyncStatus).
		Set("conflict_data", conflictData).
		Set("is_deleted", e.IsDeleted).
		Set("last_modified_at", e.LastModifiedAt.UTC()).
		Set("last_modified_by", e.LastModifiedBy).
		Where(sq.Eq{"entity_type": e.Type, "entity_id": e.ID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "could not build query")
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		t.log.Error().Err(err).Str("entityType", e.Type).Str("entityID", e.ID).Msg("could not update entity")
		return errors.Wrap(err, "could not update entity")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "could not read rows affected")
	}
	if affected == 0 {
		return errors.New("entity %s/%s not found for update", e.Type, e.ID)
	}

	return nil
}

// MarkConflict writes conflict bookkeeping only. etag and row_version stay
// untouched: they change on accepted mutations exclusively.
func (t *EntityTx) MarkConflict(ctx context.Context, entityType, id string, conflictData map[string]any) error {
	data, err := marshalConflictData(conflictData)
	if err != nil {
		return err
	}

	query, args, err := t.squirrel.Update("sync_entity").
		Set("sync_status", domain.SyncStatusConflict).
		Set("conflict_data", data).
		Where(sq.Eq{"entity_type": entityType, "entity_id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "could not build query")
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		t.log.Error().Err(err).Str("entityType", entityType).Str("entityID", id).Msg("could not mark conflict")
		return errors.Wrap(err, "could not mark conflict")
	}

	return nil
}

func (t *EntityTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return domain.Transient(errors.Wrap(err, "could not commit transaction"))
	}
	return nil
}

func (t *EntityTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "could not rollback transaction")
	}
	return nil
}
