package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

const pgUniqueViolation = "23505"

// AnnotationStore persists annotation versions as immutable rows keyed by
// (video_id, version), with a separate latest-pointer row per video. The
// pointer is only moved inside the same transaction that wrote the version,
// after the version row; a crash can therefore never publish a half-written
// version.
type AnnotationStore struct {
	pool *pgxpool.Pool

	// cache serves repeated LoadLatest calls. It is updated synchronously
	// inside SaveNewVersion so a caller re-reading after a save always sees
	// its own write.
	mu    sync.RWMutex
	cache map[string]*entity.AnnotationVersion
}

func NewAnnotationStore(pool *pgxpool.Pool) *AnnotationStore {
	return &AnnotationStore{
		pool:  pool,
		cache: make(map[string]*entity.AnnotationVersion),
	}
}

func (s *AnnotationStore) LoadLatest(ctx context.Context, videoID string) (*entity.AnnotationVersion, error) {
	s.mu.RLock()
	if v, ok := s.cache[videoID]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	query := `
		SELECT a.video_id, a.version, a.created_at, a.segments, a.is_manual_edit
		FROM annotations a
		JOIN annotation_latest l ON l.video_id = a.video_id AND l.version = a.version
		WHERE a.video_id = $1`

	v, err := s.scanVersion(s.pool.QueryRow(ctx, query, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: video %s", entity.ErrAnnotationNotFound, videoID)
		}
		return nil, fmt.Errorf("load latest annotation: %w", err)
	}

	s.mu.Lock()
	s.cache[videoID] = v
	s.mu.Unlock()

	return v, nil
}

func (s *AnnotationStore) LoadVersion(ctx context.Context, videoID string, version int) (*entity.AnnotationVersion, error) {
	query := `
		SELECT video_id, version, created_at, segments, is_manual_edit
		FROM annotations WHERE video_id = $1 AND version = $2`

	v, err := s.scanVersion(s.pool.QueryRow(ctx, query, videoID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: video %s version %d", entity.ErrAnnotationNotFound, videoID, version)
		}
		return nil, fmt.Errorf("load annotation version: %w", err)
	}
	return v, nil
}

// SaveNewVersion allocates version (current max + 1) and writes it atomically.
// Writers for the same video serialize on the latest-pointer row lock; a
// racing writer that slips past the lock is stopped by the primary key and
// reported as a conflict.
func (s *AnnotationStore) SaveNewVersion(ctx context.Context, videoID string, segments []entity.Segment, isManualEdit bool) (*entity.AnnotationVersion, error) {
	body, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin annotation save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO annotation_latest (video_id, version) VALUES ($1, 0)
		 ON CONFLICT (video_id) DO NOTHING`, videoID)
	if err != nil {
		return nil, fmt.Errorf("seed latest pointer: %w", err)
	}

	var current int
	err = tx.QueryRow(ctx,
		`SELECT version FROM annotation_latest WHERE video_id = $1 FOR UPDATE`, videoID,
	).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("lock latest pointer: %w", err)
	}

	v := &entity.AnnotationVersion{
		VideoID:      videoID,
		Version:      current + 1,
		CreatedAt:    time.Now().UTC(),
		Segments:     segments,
		IsManualEdit: isManualEdit,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO annotations (video_id, version, created_at, segments, is_manual_edit)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.VideoID, v.Version, v.CreatedAt, body, v.IsManualEdit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: video %s version %d", entity.ErrConcurrentSaveConflict, videoID, v.Version)
		}
		return nil, fmt.Errorf("insert annotation version: %w", err)
	}

	// Publish the pointer only after the version row is in place.
	_, err = tx.Exec(ctx,
		`UPDATE annotation_latest SET version = $2 WHERE video_id = $1`, videoID, v.Version)
	if err != nil {
		return nil, fmt.Errorf("advance latest pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit annotation save: %w", err)
	}

	s.mu.Lock()
	s.cache[videoID] = v
	s.mu.Unlock()

	return v, nil
}

func (s *AnnotationStore) ListVersions(ctx context.Context, videoID string) ([]entity.VersionMeta, error) {
	query := `
		SELECT video_id, version, created_at, jsonb_array_length(segments), is_manual_edit
		FROM annotations WHERE video_id = $1 ORDER BY version`

	rows, err := s.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("list annotation versions: %w", err)
	}
	defer rows.Close()

	var metas []entity.VersionMeta
	for rows.Next() {
		var m entity.VersionMeta
		if err := rows.Scan(&m.VideoID, &m.Version, &m.CreatedAt, &m.SegmentCount, &m.IsManualEdit); err != nil {
			return nil, fmt.Errorf("scan version metadata: %w", err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *AnnotationStore) scanVersion(row pgx.Row) (*entity.AnnotationVersion, error) {
	var v entity.AnnotationVersion
	var body []byte
	if err := row.Scan(&v.VideoID, &v.Version, &v.CreatedAt, &body, &v.IsManualEdit); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &v.Segments); err != nil {
		return nil, fmt.Errorf("unmarshal segments: %w", err)
	}
	return &v, nil
}
