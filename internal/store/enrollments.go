package store

import (
	"context"
	"database/sql"
	"fmt"

	"course-service/internal/models"
)

// CreateEnrollment inserts a new enrollment. The unique (learner_id, course_id)
// constraint rejects a second enrollment; callers detect it with IsUniqueViolation.
func (s *Store) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return s.db.GetContext(ctx, enrollment, `
		INSERT INTO enrollments (learner_id, course_id, purchased_as, order_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		enrollment.LearnerID, enrollment.CourseID, enrollment.PurchasedAs,
		enrollment.OrderID, enrollment.Status, enrollment.StartedAt)
}

// GetEnrollment retrieves the enrollment for a (learner, course) pair.
// Returns nil without error when no enrollment exists.
func (s *Store) GetEnrollment(ctx context.Context, learnerID, courseID int64) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.GetContext(ctx, &enrollment,
		"SELECT * FROM enrollments WHERE learner_id = $1 AND course_id = $2",
		learnerID, courseID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// GetEnrollmentsByLearnerID retrieves all enrollments of a learner, newest first
func (s *Store) GetEnrollmentsByLearnerID(ctx context.Context, learnerID int64) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := s.db.SelectContext(ctx, &enrollments,
		"SELECT * FROM enrollments WHERE learner_id = $1 ORDER BY created_at DESC", learnerID)
	return enrollments, err
}

// CompleteEnrollment flips an enrollment to completed with a completion timestamp
func (s *Store) CompleteEnrollment(ctx context.Context, learnerID, courseID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE enrollments SET status = $1, completed_at = NOW()
		WHERE learner_id = $2 AND course_id = $3`,
		models.EnrollmentStatusCompleted, learnerID, courseID)
	return err
}

// ReopenEnrollment reverts a completed enrollment to active and clears completed_at
func (s *Store) ReopenEnrollment(ctx context.Context, learnerID, courseID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE enrollments SET status = $1, completed_at = NULL
		WHERE learner_id = $2 AND course_id = $3`,
		models.EnrollmentStatusActive, learnerID, courseID)
	return err
}

// UpsertLessonProgress writes the completion flag for a (learner, lesson) pair.
// A repeated call only refreshes the timestamps.
func (s *Store) UpsertLessonProgress(ctx context.Context, progress *models.LessonProgress) error {
	return s.db.GetContext(ctx, progress, `
		INSERT INTO lesson_progress (learner_id, lesson_id, completed, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (learner_id, lesson_id)
		DO UPDATE SET completed = EXCLUDED.completed,
		              completed_at = EXCLUDED.completed_at,
		              updated_at = NOW()
		RETURNING *`,
		progress.LearnerID, progress.LessonID, progress.Completed, progress.CompletedAt)
}

// GetLessonProgressByCourse retrieves the learner's progress rows for all
// lessons of a course
func (s *Store) GetLessonProgressByCourse(ctx context.Context, learnerID, courseID int64) ([]models.LessonProgress, error) {
	var rows []models.LessonProgress
	err := s.db.SelectContext(ctx, &rows, `
		SELECT lp.* FROM lesson_progress lp
		JOIN lessons l ON l.id = lp.lesson_id
		WHERE lp.learner_id = $1 AND l.course_id = $2`,
		learnerID, courseID)
	return rows, err
}

// CountCourseProgress returns total lessons of the course and the learner's
// completed count in one round trip. Every lesson row counts toward the
// total; filtering of unauthored lessons belongs to the presentation layer.
func (s *Store) CountCourseProgress(ctx context.Context, learnerID, courseID int64) (total, completed int, err error) {
	row := struct {
		Total     int `db:"total_lessons"`
		Completed int `db:"completed_lessons"`
	}{}
	err = s.db.GetContext(ctx, &row, `
		SELECT
			(SELECT COUNT(*) FROM lessons WHERE course_id = $1) AS total_lessons,
			(SELECT COUNT(*) FROM lesson_progress lp
			 JOIN lessons l ON l.id = lp.lesson_id
			 WHERE lp.learner_id = $2 AND l.course_id = $1 AND lp.completed) AS completed_lessons`,
		courseID, learnerID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count course progress: %w", err)
	}
	return row.Total, row.Completed, nil
}
