package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"course-service/internal/models"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressService tracks per-lesson completion and aggregates it into
// course progress. Reaching 100% completes the enrollment and triggers
// certificate issuance.
type ProgressService struct {
	store    Store
	cache    Cache
	events   Publisher
	certs    *CertificateService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewProgressService creates a new progress service
func NewProgressService(store Store, cache Cache, events Publisher, certs *CertificateService, cacheTTL time.Duration) *ProgressService {
	return &ProgressService{
		store:    store,
		cache:    cache,
		events:   events,
		certs:    certs,
		logger:   util.GetLogger(),
		cacheTTL: cacheTTL,
	}
}

// MarkLessonComplete upserts the completion flag for a lesson. Idempotent:
// a repeat call only refreshes the timestamp. When aggregated progress
// reaches 100% the enrollment is completed and a certificate is issued;
// an issuance failure is logged but never fails the completion call.
func (s *ProgressService) MarkLessonComplete(ctx context.Context, learnerID, lessonID, courseID int64) (*models.LessonProgress, error) {
	ctx, span := util.StartSpan(ctx, "ProgressService.MarkLessonComplete")
	defer span.End()

	enrollment, err := s.checkToggle(ctx, learnerID, lessonID, courseID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	progress := &models.LessonProgress{
		LearnerID:   learnerID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: &now,
	}
	if err := s.store.UpsertLessonProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("failed to mark lesson complete: %w", err)
	}

	util.LessonsCompletedTotal.Inc()
	s.invalidateCache(ctx, learnerID, courseID)

	aggregate, err := s.computeProgress(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}

	event := &models.LessonCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeLessonCompleted,
			Timestamp: now,
		},
		LearnerID:       learnerID,
		LessonID:        lessonID,
		CourseID:        courseID,
		ProgressPercent: aggregate.ProgressPercent,
	}
	if err := s.events.PublishLessonCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish LessonCompleted event", zap.Error(err))
	}

	if aggregate.ProgressPercent == 100 {
		s.completeCourse(ctx, learnerID, courseID, enrollment)
	}

	return progress, nil
}

// completeCourse transitions the enrollment to completed and drives
// certificate issuance. Completion state is the durable fact; issuance
// is recoverable by retry through the CourseCompleted event.
func (s *ProgressService) completeCourse(ctx context.Context, learnerID, courseID int64, enrollment *models.Enrollment) {
	if err := s.store.CompleteEnrollment(ctx, learnerID, courseID); err != nil {
		s.logger.Error("Failed to complete enrollment",
			zap.Int64("learner_id", learnerID),
			zap.Int64("course_id", courseID),
			zap.Error(err))
		return
	}

	if enrollment.Status != models.EnrollmentStatusCompleted {
		util.CoursesCompletedTotal.Inc()
		s.logger.Info("Course completed",
			zap.Int64("learner_id", learnerID),
			zap.Int64("course_id", courseID))
	}

	completedAt := time.Now()
	event := &models.CourseCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCourseCompleted,
			Timestamp: completedAt,
		},
		LearnerID:   learnerID,
		CourseID:    courseID,
		CompletedAt: completedAt,
	}
	if err := s.events.PublishCourseCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish CourseCompleted event", zap.Error(err))
	}

	if _, err := s.certs.CheckAndIssue(ctx, learnerID, courseID); err != nil {
		if errors.Is(err, ErrNotEligible) {
			s.logger.Info("Certificate not issued",
				zap.Int64("learner_id", learnerID),
				zap.Int64("course_id", courseID),
				zap.Error(err))
		} else {
			s.logger.Error("Certificate issuance failed, retry via worker",
				zap.Int64("learner_id", learnerID),
				zap.Int64("course_id", courseID),
				zap.Error(err))
		}
	}
}

// MarkLessonIncomplete clears the completion flag. A completed enrollment
// reverts to active; an already-issued certificate is left untouched.
func (s *ProgressService) MarkLessonIncomplete(ctx context.Context, learnerID, lessonID, courseID int64) error {
	ctx, span := util.StartSpan(ctx, "ProgressService.MarkLessonIncomplete")
	defer span.End()

	enrollment, err := s.checkToggle(ctx, learnerID, lessonID, courseID)
	if err != nil {
		return err
	}

	progress := &models.LessonProgress{
		LearnerID:   learnerID,
		LessonID:    lessonID,
		Completed:   false,
		CompletedAt: nil,
	}
	if err := s.store.UpsertLessonProgress(ctx, progress); err != nil {
		return fmt.Errorf("failed to mark lesson incomplete: %w", err)
	}

	s.invalidateCache(ctx, learnerID, courseID)

	if enrollment.Status == models.EnrollmentStatusCompleted {
		if err := s.store.ReopenEnrollment(ctx, learnerID, courseID); err != nil {
			return fmt.Errorf("failed to reopen enrollment: %w", err)
		}
		s.logger.Info("Enrollment reverted to active",
			zap.Int64("learner_id", learnerID),
			zap.Int64("course_id", courseID))
	}

	return nil
}

// checkToggle validates a completion toggle: identifiers present, the
// lesson belongs to the course, and an enrollment of any status exists.
func (s *ProgressService) checkToggle(ctx context.Context, learnerID, lessonID, courseID int64) (*models.Enrollment, error) {
	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}
	if lessonID == 0 {
		return nil, validationErr("lesson_id")
	}
	if courseID == 0 {
		return nil, validationErr("course_id")
	}

	lesson, err := s.store.GetLessonByID(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, fmt.Errorf("%w: lesson %d not found", ErrValidation, lessonID)
	}
	if lesson.CourseID != courseID {
		return nil, fmt.Errorf("%w: lesson %d does not belong to course %d", ErrValidation, lessonID, courseID)
	}

	enrollment, err := s.store.GetEnrollment(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, ErrNotEnrolled
	}
	return enrollment, nil
}

// GetCourseProgress derives completion from lesson counts, served through
// the redis cache when warm.
func (s *ProgressService) GetCourseProgress(ctx context.Context, learnerID, courseID int64) (*models.CourseProgress, error) {
	ctx, span := util.StartSpan(ctx, "ProgressService.GetCourseProgress")
	defer span.End()

	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}
	if courseID == 0 {
		return nil, validationErr("course_id")
	}

	if cached, err := s.cache.GetCachedProgress(ctx, learnerID, courseID); err != nil {
		s.logger.Warn("Progress cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	return s.computeProgress(ctx, learnerID, courseID)
}

// computeProgress recounts from the store and refreshes the cache
func (s *ProgressService) computeProgress(ctx context.Context, learnerID, courseID int64) (*models.CourseProgress, error) {
	start := time.Now()
	defer func() {
		util.ProgressQueryLatency.Observe(time.Since(start).Seconds())
	}()

	total, completed, err := s.store.CountCourseProgress(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}

	progress := &models.CourseProgress{
		ProgressPercent:  progressPercent(total, completed),
		TotalLessons:     total,
		CompletedLessons: completed,
	}

	if err := s.cache.SetCachedProgress(ctx, learnerID, courseID, progress, s.cacheTTL); err != nil {
		s.logger.Warn("Progress cache write failed", zap.Error(err))
	}

	return progress, nil
}

// progressPercent rounds completed/total to a whole percentage. 100 is
// reported only when every lesson is complete; a sub-100 ratio never
// rounds up to 100.
func progressPercent(total, completed int) int {
	if total == 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	percent := int(math.Round(float64(completed) / float64(total) * 100))
	if percent == 100 {
		percent = 99
	}
	return percent
}

func (s *ProgressService) invalidateCache(ctx context.Context, learnerID, courseID int64) {
	if err := s.cache.InvalidateProgress(ctx, learnerID, courseID); err != nil {
		s.logger.Warn("Failed to invalidate progress cache",
			zap.Int64("learner_id", learnerID),
			zap.Int64("course_id", courseID),
			zap.Error(err))
	}
}

// EnrollmentWithProgress pairs an enrollment with its aggregated course progress
type EnrollmentWithProgress struct {
	models.Enrollment
	Progress models.CourseProgress `json:"progress"`
}

// GetLearnerEnrollments lists a learner's enrollments, each carrying its
// course progress served through the cache.
func (s *ProgressService) GetLearnerEnrollments(ctx context.Context, learnerID int64) ([]EnrollmentWithProgress, error) {
	ctx, span := util.StartSpan(ctx, "ProgressService.GetLearnerEnrollments")
	defer span.End()

	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}

	enrollments, err := s.store.GetEnrollmentsByLearnerID(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	out := make([]EnrollmentWithProgress, 0, len(enrollments))
	for _, enrollment := range enrollments {
		progress, err := s.GetCourseProgress(ctx, learnerID, enrollment.CourseID)
		if err != nil {
			return nil, err
		}
		out = append(out, EnrollmentWithProgress{
			Enrollment: enrollment,
			Progress:   *progress,
		})
	}
	return out, nil
}

// LessonWithProgress pairs a lesson with the learner's completion flag
type LessonWithProgress struct {
	models.Lesson
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CourseDetail is the player payload: lessons joined with progress
type CourseDetail struct {
	Course     models.Course         `json:"course"`
	Lessons    []LessonWithProgress  `json:"lessons"`
	Progress   models.CourseProgress `json:"progress"`
	Enrollment models.Enrollment     `json:"enrollment"`
}

// GetCourseWithProgress returns the course lessons joined with the
// learner's per-lesson progress, for the course-player collaborator.
func (s *ProgressService) GetCourseWithProgress(ctx context.Context, learnerID, courseID int64) (*CourseDetail, error) {
	ctx, span := util.StartSpan(ctx, "ProgressService.GetCourseWithProgress")
	defer span.End()

	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}
	if courseID == 0 {
		return nil, validationErr("course_id")
	}

	enrollment, err := s.store.GetEnrollment(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, ErrNotEnrolled
	}

	course, err := s.store.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}

	lessons, err := s.store.GetLessonsByCourseID(ctx, courseID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.GetLessonProgressByCourse(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	byLesson := make(map[int64]models.LessonProgress, len(rows))
	for _, row := range rows {
		byLesson[row.LessonID] = row
	}

	joined := make([]LessonWithProgress, 0, len(lessons))
	for _, lesson := range lessons {
		lp := LessonWithProgress{Lesson: lesson}
		if row, ok := byLesson[lesson.ID]; ok {
			lp.Completed = row.Completed
			lp.CompletedAt = row.CompletedAt
		}
		joined = append(joined, lp)
	}

	progress, err := s.computeProgress(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}

	return &CourseDetail{
		Course:     *course,
		Lessons:    joined,
		Progress:   *progress,
		Enrollment: *enrollment,
	}, nil
}
