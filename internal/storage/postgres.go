package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/models"
)

// ErrStudentExists is returned by InsertSet when the unique-identity
// constraint rejects the insert. Concurrent enrollments for the same student
// are resolved here, at the storage layer, not with application locking.
var ErrStudentExists = errors.New("student already enrolled")

type PostgresStore struct {
	pool *pgxpool.Pool
	// hasAngleColumn is probed once at startup; older schemas predate the
	// photo_angle column and get the narrower insert variant.
	hasAngleColumn bool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.probeSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("probe schema: %w", err)
	}

	return s, nil
}

// probeSchema checks which optional columns the deployed schema carries so
// inserts can pick a variant up front instead of catching column errors.
func (s *PostgresStore) probeSchema(ctx context.Context) error {
	return s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'face_enrollments' AND column_name = 'photo_angle'
		)`).Scan(&s.hasAngleColumn)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindByStudent returns the canonical enrollment row for the student (the
// front-angle row of a multi-photo set), or nil when the student has never
// enrolled. Used to reject re-enrollment with a conflict naming the existing
// enrollment date, and to serve the stored photo. The angle tiebreaker
// matters: all rows of a multi-photo set share one transaction-stable
// created_at.
func (s *PostgresStore) FindByStudent(ctx context.Context, studentID string) (*models.Enrollment, error) {
	e := &models.Enrollment{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, student_id, photo_key, photo_hash, face_confidence, photo_quality_score,
		        model_name, detector_backend, active, created_at
		 FROM face_enrollments WHERE student_id = $1
		 ORDER BY created_at, (COALESCE(photo_angle, 'front') = 'front') DESC, id
		 LIMIT 1`, studentID,
	).Scan(&e.ID, &e.StudentID, &e.PhotoKey, &e.PhotoHash, &e.FaceConfidence, &e.QualityScore,
		&e.ModelName, &e.DetectorBackend, &e.Active, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return e, nil
}

// ListActiveEmbeddings returns every active (identity, embedding, model)
// tuple for the duplicate-face search. The search is a linear scan over all
// active enrollments — O(n) per enrollment attempt, which is fine at
// attendance-roster scale.
func (s *PostgresStore) ListActiveEmbeddings(ctx context.Context) ([]models.StoredEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT student_id, embedding, model_name FROM face_enrollments WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("list active embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEmbedding
	for rows.Next() {
		var se models.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&se.StudentID, &vec, &se.ModelName); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		se.Embedding = vec.Slice()
		out = append(out, se)
	}
	return out, rows.Err()
}

// ListVerificationCandidates returns the active embeddings for one student,
// restricted to those produced by modelName. Cross-model embeddings are
// never compared.
func (s *PostgresStore) ListVerificationCandidates(ctx context.Context, studentID, modelName string) ([][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT embedding FROM face_enrollments
		 WHERE student_id = $1 AND model_name = $2 AND active`,
		studentID, modelName)
	if err != nil {
		return nil, fmt.Errorf("list verification candidates: %w", err)
	}
	defer rows.Close()

	var out [][]float32
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, vec.Slice())
	}
	return out, rows.Err()
}

// InsertSet persists one or more enrollment rows for a single student in one
// transaction, so a multi-photo enrollment is all-or-nothing at the database
// level too. Returns ErrStudentExists when the unique-identity index fires.
func (s *PostgresStore) InsertSet(ctx context.Context, records []*models.Enrollment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range records {
		e.ID = uuid.New()
		e.Active = true

		vec := pgvector.NewVector(e.Embedding)
		if s.hasAngleColumn {
			err = tx.QueryRow(ctx,
				`INSERT INTO face_enrollments (
					id, student_id, photo_key, photo_hash, embedding,
					face_confidence, photo_quality_score, model_name, detector_backend,
					photo_angle, active
				 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 RETURNING created_at`,
				e.ID, e.StudentID, e.PhotoKey, e.PhotoHash, vec,
				e.FaceConfidence, e.QualityScore, e.ModelName, e.DetectorBackend,
				e.Angle, e.Active,
			).Scan(&e.CreatedAt)
		} else {
			err = tx.QueryRow(ctx,
				`INSERT INTO face_enrollments (
					id, student_id, photo_key, photo_hash, embedding,
					face_confidence, photo_quality_score, model_name, detector_backend,
					active
				 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 RETURNING created_at`,
				e.ID, e.StudentID, e.PhotoKey, e.PhotoHash, vec,
				e.FaceConfidence, e.QualityScore, e.ModelName, e.DetectorBackend,
				e.Active,
			).Scan(&e.CreatedAt)
		}
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrStudentExists
			}
			return fmt.Errorf("insert enrollment: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Delete removes every enrollment row for the student and returns the photo
// keys that backed them. found is false when no row existed; the caller is
// responsible for removing the photos from blob storage.
func (s *PostgresStore) Delete(ctx context.Context, studentID string) (photoKeys []string, found bool, err error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM face_enrollments WHERE student_id = $1 RETURNING photo_key`, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("delete enrollment: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, false, fmt.Errorf("scan photo key: %w", err)
		}
		photoKeys = append(photoKeys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return photoKeys, len(photoKeys) > 0, nil
}

// ListSummaries returns enrollment records without embeddings, newest first.
func (s *PostgresStore) ListSummaries(ctx context.Context) ([]models.Enrollment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, photo_key, photo_hash, face_confidence, photo_quality_score,
		        model_name, detector_backend, active, created_at
		 FROM face_enrollments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.PhotoKey, &e.PhotoHash,
			&e.FaceConfidence, &e.QualityScore, &e.ModelName, &e.DetectorBackend,
			&e.Active, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Attendance events ---

func (s *PostgresStore) InsertAttendanceEvent(ctx context.Context, ev *models.AttendanceEvent) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_events (id, student_id, verified, confidence, threshold, model_name, occurred_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.StudentID, ev.Verified, ev.Confidence, ev.Threshold, ev.ModelName, ev.OccurredAt, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttendanceEvents(ctx context.Context, limit int) ([]models.AttendanceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, verified, confidence, threshold, model_name, occurred_at, created_at
		 FROM attendance_events ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance events: %w", err)
	}
	defer rows.Close()

	var out []models.AttendanceEvent
	for rows.Next() {
		var ev models.AttendanceEvent
		if err := rows.Scan(&ev.ID, &ev.StudentID, &ev.Verified, &ev.Confidence,
			&ev.Threshold, &ev.ModelName, &ev.OccurredAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
