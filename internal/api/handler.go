package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"course-service/internal/service"
	"course-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	enrollments  *service.EnrollmentService
	progress     *service.ProgressService
	certificates *service.CertificateService
	companies    *service.CompanyService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	enrollments *service.EnrollmentService,
	progress *service.ProgressService,
	certificates *service.CertificateService,
	companies *service.CompanyService,
) *Handler {
	return &Handler{
		enrollments:  enrollments,
		progress:     progress,
		certificates: certificates,
		companies:    companies,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.checkout)
		v1.GET("/orders/:id", h.getOrder)

		v1.GET("/learners/:id/enrollments", h.getEnrollments)
		v1.GET("/learners/:id/certificates", h.getCertificates)

		v1.POST("/learners/:id/courses/:course_id/lessons/:lesson_id/complete", h.completeLesson)
		v1.DELETE("/learners/:id/courses/:course_id/lessons/:lesson_id/complete", h.uncompleteLesson)
		v1.GET("/learners/:id/courses/:course_id/progress", h.getProgress)
		v1.GET("/learners/:id/courses/:course_id", h.getCourseWithProgress)
		v1.POST("/learners/:id/courses/:course_id/certificate", h.claimCertificate)

		v1.GET("/certificates/verify/:code", h.verifyCertificate)

		v1.POST("/companies/:id/invitations", h.inviteEmployee)
		v1.GET("/companies/:id/invitations", h.listInvitations)
		v1.POST("/companies/:id/invitations/resend", h.resendInvitation)
		v1.DELETE("/companies/:id/invitations/:invitation_id", h.cancelInvitation)
		v1.POST("/invitations/accept", h.acceptInvitation)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// checkout records a confirmed purchase and enrolls the learner
func (h *Handler) checkout(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.enrollments.Checkout(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, items, payment, err := h.enrollments.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"items":   items,
		"payment": payment,
	})
}

// getEnrollments lists a learner's enrollments with their course progress
func (h *Handler) getEnrollments(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	enrollments, err := h.progress.GetLearnerEnrollments(c.Request.Context(), learnerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

// getCertificates lists a learner's earned certificates
func (h *Handler) getCertificates(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	certs, err := h.certificates.GetLearnerCertificates(c.Request.Context(), learnerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"certificates": certs})
}

// completeLesson marks a lesson complete for a learner
func (h *Handler) completeLesson(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}
	lessonID, ok := pathID(c, "lesson_id")
	if !ok {
		return
	}

	progress, err := h.progress.MarkLessonComplete(c.Request.Context(), learnerID, lessonID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// uncompleteLesson clears a lesson completion
func (h *Handler) uncompleteLesson(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}
	lessonID, ok := pathID(c, "lesson_id")
	if !ok {
		return
	}

	if err := h.progress.MarkLessonIncomplete(c.Request.Context(), learnerID, lessonID, courseID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "incomplete"})
}

// getProgress returns the aggregated course progress for a learner
func (h *Handler) getProgress(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}

	progress, err := h.progress.GetCourseProgress(c.Request.Context(), learnerID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// getCourseWithProgress returns the course player payload
func (h *Handler) getCourseWithProgress(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}

	detail, err := h.progress.GetCourseWithProgress(c.Request.Context(), learnerID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// claimCertificate drives issuance on demand, for learners whose
// certificate was not issued inline at completion time
func (h *Handler) claimCertificate(c *gin.Context) {
	learnerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}

	cert, err := h.certificates.CheckAndIssue(c.Request.Context(), learnerID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cert)
}

// verifyCertificate is the public lookup by verification code
func (h *Handler) verifyCertificate(c *gin.Context) {
	result, err := h.certificates.VerifyCertificate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	if !result.Valid {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type inviteRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role"`
}

// inviteEmployee creates a seat-gated company invitation
func (h *Handler) inviteEmployee(c *gin.Context) {
	companyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	invitation, err := h.companies.InviteEmployee(c.Request.Context(), companyID, req.Email, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invitation)
}

// listInvitations lists a company's invitations
func (h *Handler) listInvitations(c *gin.Context) {
	companyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	invitations, err := h.companies.ListInvitations(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

// resendInvitation rotates a pending invitation's token and expiry
func (h *Handler) resendInvitation(c *gin.Context) {
	companyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	invitation, err := h.companies.ResendInvitation(c.Request.Context(), companyID, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invitation)
}

// cancelInvitation removes a pending invitation and frees its seat
func (h *Handler) cancelInvitation(c *gin.Context) {
	companyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	invitationID, ok := pathID(c, "invitation_id")
	if !ok {
		return
	}

	if err := h.companies.CancelInvitation(c.Request.Context(), companyID, invitationID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type acceptRequest struct {
	Token string `json:"token" binding:"required"`
}

// acceptInvitation redeems an invitation token
func (h *Handler) acceptInvitation(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	invitation, err := h.companies.AcceptInvitation(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invitation)
}

// pathID parses a numeric path parameter, responding 400 itself on failure
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// respondError maps service errors to HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateEnrollment):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotEnrolled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotEligible):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSeatLimitReached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvitationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvitationExpired),
		errors.Is(err, service.ErrInvitationAccepted):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
