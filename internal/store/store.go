package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"course-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// IsUniqueViolation reports whether err is a postgres unique-constraint
// violation. The one-enrollment and one-certificate invariants rely on
// these constraints rather than check-then-insert.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// GetLearnerByID retrieves a learner profile
func (s *Store) GetLearnerByID(ctx context.Context, id int64) (*models.Learner, error) {
	var learner models.Learner
	err := s.db.GetContext(ctx, &learner, "SELECT * FROM learners WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("learner not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &learner, nil
}

// GetCourseByID retrieves a course by ID
func (s *Store) GetCourseByID(ctx context.Context, id int64) (*models.Course, error) {
	var course models.Course
	err := s.db.GetContext(ctx, &course, `
		SELECT c.id, c.title, c.instructor_id, c.enable_certificates,
		       c.enrollment_count, c.created_at,
		       COALESCE(i.full_name, '') AS instructor_name
		FROM courses c
		LEFT JOIN learners i ON i.id = c.instructor_id
		WHERE c.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// IncrementEnrollmentCount bumps the denormalized course counter atomically
func (s *Store) IncrementEnrollmentCount(ctx context.Context, courseID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE courses SET enrollment_count = enrollment_count + 1 WHERE id = $1",
		courseID)
	return err
}

// GetLessonByID retrieves a lesson by ID.
// Returns nil without error when the lesson does not exist.
func (s *Store) GetLessonByID(ctx context.Context, id int64) (*models.Lesson, error) {
	var lesson models.Lesson
	err := s.db.GetContext(ctx, &lesson,
		"SELECT id, course_id, section_id, title, position FROM lessons WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// GetLessonsByCourseID retrieves all lessons of a course ordered by position
func (s *Store) GetLessonsByCourseID(ctx context.Context, courseID int64) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := s.db.SelectContext(ctx, &lessons,
		"SELECT id, course_id, section_id, title, position FROM lessons WHERE course_id = $1 ORDER BY position",
		courseID)
	return lessons, err
}

// GetCompanyByID retrieves a company with its seat allocation
func (s *Store) GetCompanyByID(ctx context.Context, id int64) (*models.Company, error) {
	var company models.Company
	err := s.db.GetContext(ctx, &company, "SELECT * FROM companies WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("company not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// ClaimSeat increments active_seats only while under the seat limit.
// Returns false when the limit is already reached; the conditional UPDATE
// closes the check-then-act race at the database.
func (s *Store) ClaimSeat(ctx context.Context, companyID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE companies SET active_seats = active_seats + 1 WHERE id = $1 AND active_seats < seat_limit",
		companyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseSeat returns one claimed seat, never going below zero
func (s *Store) ReleaseSeat(ctx context.Context, companyID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE companies SET active_seats = active_seats - 1 WHERE id = $1 AND active_seats > 0",
		companyID)
	return err
}
