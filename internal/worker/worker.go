package worker

import (
	"context"
	"errors"

	"course-service/internal/broker"
	"course-service/internal/models"
	"course-service/internal/service"
	"course-service/internal/util"

	"go.uber.org/zap"
)

// CertificateWorker re-drives certificate issuance from CourseCompleted
// events. The inline attempt on the completion path can fail without
// failing the lesson call; this consumer retries until issuance sticks.
// Issuance is idempotent, so a redelivered event is harmless.
type CertificateWorker struct {
	consumer *broker.Consumer
	certs    *service.CertificateService
	logger   *zap.Logger
}

// NewCertificateWorker creates a new certificate retry worker
func NewCertificateWorker(consumer *broker.Consumer, certs *service.CertificateService) *CertificateWorker {
	return &CertificateWorker{
		consumer: consumer,
		certs:    certs,
		logger:   util.GetLogger(),
	}
}

// Start consumes CourseCompleted events until ctx is cancelled
func (w *CertificateWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnCourseCompleted(w.handleCourseCompleted)

	w.logger.Info("Certificate retry worker starting")
	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

func (w *CertificateWorker) handleCourseCompleted(ctx context.Context, event *models.CourseCompletedEvent) error {
	_, err := w.certs.CheckAndIssue(ctx, event.LearnerID, event.CourseID)
	if err != nil {
		// Ineligible is terminal for this event; commit and move on.
		// Anything else is returned so the message is not committed
		// and kafka redelivers it.
		if errors.Is(err, service.ErrNotEligible) {
			w.logger.Info("Certificate not issued on retry",
				zap.Int64("learner_id", event.LearnerID),
				zap.Int64("course_id", event.CourseID),
				zap.Error(err))
			return nil
		}
		w.logger.Error("Certificate retry failed",
			zap.Int64("learner_id", event.LearnerID),
			zap.Int64("course_id", event.CourseID),
			zap.Error(err))
		return err
	}
	return nil
}

// Stop closes the underlying consumer
func (w *CertificateWorker) Stop() error {
	return w.consumer.Close()
}
