package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-service/internal/models"
	"course-service/internal/store"

	"github.com/lib/pq"
)

type pairKey struct {
	a, b int64
}

// fakeStore is an in-memory Store with the same uniqueness guarantees
// as the postgres schema, safe for concurrent use
type fakeStore struct {
	mu sync.Mutex

	nextID int64

	learners map[int64]*models.Learner
	courses  map[int64]*models.Course
	lessons  map[int64]*models.Lesson

	orders     map[int64]*models.Order
	orderItems map[int64][]models.OrderItem
	payments   map[int64]*models.Payment

	enrollments map[pairKey]*models.Enrollment
	progress    map[pairKey]*models.LessonProgress

	certificates map[pairKey]*models.Certificate
	certsByCode  map[string]*models.Certificate

	companies   map[int64]*models.Company
	invitations map[int64]*models.CompanyInvitation

	createCertificateErr    error
	beforeCreateCertificate func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		learners:     make(map[int64]*models.Learner),
		courses:      make(map[int64]*models.Course),
		lessons:      make(map[int64]*models.Lesson),
		orders:       make(map[int64]*models.Order),
		orderItems:   make(map[int64][]models.OrderItem),
		payments:     make(map[int64]*models.Payment),
		enrollments:  make(map[pairKey]*models.Enrollment),
		progress:     make(map[pairKey]*models.LessonProgress),
		certificates: make(map[pairKey]*models.Certificate),
		certsByCode:  make(map[string]*models.Certificate),
		companies:    make(map[int64]*models.Company),
		invitations:  make(map[int64]*models.CompanyInvitation),
	}
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505"}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addLearner(id int64, name string) {
	f.learners[id] = &models.Learner{ID: id, FullName: name, Email: fmt.Sprintf("l%d@example.com", id)}
}

func (f *fakeStore) addCourse(id, instructorID int64, title string, certs bool) {
	f.courses[id] = &models.Course{ID: id, Title: title, InstructorID: instructorID, EnableCertificates: certs}
}

func (f *fakeStore) addLesson(id, courseID int64, position int) {
	f.lessons[id] = &models.Lesson{ID: id, CourseID: courseID, Title: fmt.Sprintf("Lesson %d", position), Position: position}
}

func (f *fakeStore) addCompany(id int64, seatLimit, activeSeats int) {
	f.companies[id] = &models.Company{ID: id, Name: "Acme", SeatLimit: seatLimit, ActiveSeats: activeSeats}
}

func (f *fakeStore) GetLearnerByID(ctx context.Context, id int64) (*models.Learner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.learners[id]
	if !ok {
		return nil, fmt.Errorf("learner not found: %d", id)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetCourseByID(ctx context.Context, id int64) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[id]
	if !ok {
		return nil, fmt.Errorf("course not found: %d", id)
	}
	cp := *c
	if instructor, ok := f.learners[c.InstructorID]; ok {
		cp.InstructorName = instructor.FullName
	}
	return &cp, nil
}

func (f *fakeStore) IncrementEnrollmentCount(ctx context.Context, courseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.courses[courseID]; ok {
		c.EnrollmentCount++
	}
	return nil
}

func (f *fakeStore) GetLessonByID(ctx context.Context, id int64) (*models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetLessonsByCourseID(ctx context.Context, courseID int64) ([]models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Lesson
	for _, l := range f.lessons {
		if l.CourseID == courseID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePurchaseTx(ctx context.Context, p *store.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Order.ID = f.id()
	p.Order.CreatedAt = time.Now()
	if p.Order.Status == models.OrderStatusPending {
		p.Order.Status = models.OrderStatusCompleted
	}
	order := p.Order
	f.orders[order.ID] = &order

	p.OrderItem.ID = f.id()
	p.OrderItem.OrderID = order.ID
	f.orderItems[order.ID] = append(f.orderItems[order.ID], p.OrderItem)

	p.Payment.ID = f.id()
	p.Payment.OrderID = order.ID
	payment := p.Payment
	f.payments[order.ID] = &payment
	return nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrdersByLearnerID(ctx context.Context, learnerID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.LearnerID == learnerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderItem(nil), f.orderItems[orderID]...), nil
}

func (f *fakeStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment not found for order: %d", orderID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{enrollment.LearnerID, enrollment.CourseID}
	if _, exists := f.enrollments[key]; exists {
		return uniqueViolation()
	}
	enrollment.ID = f.id()
	enrollment.CreatedAt = time.Now()
	cp := *enrollment
	f.enrollments[key] = &cp
	return nil
}

func (f *fakeStore) GetEnrollment(ctx context.Context, learnerID, courseID int64) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[pairKey{learnerID, courseID}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) GetEnrollmentsByLearnerID(ctx context.Context, learnerID int64) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if e.LearnerID == learnerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeStore) CompleteEnrollment(ctx context.Context, learnerID, courseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[pairKey{learnerID, courseID}]
	if !ok {
		return fmt.Errorf("enrollment not found")
	}
	now := time.Now()
	e.Status = models.EnrollmentStatusCompleted
	e.CompletedAt = &now
	return nil
}

func (f *fakeStore) ReopenEnrollment(ctx context.Context, learnerID, courseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[pairKey{learnerID, courseID}]
	if !ok {
		return fmt.Errorf("enrollment not found")
	}
	e.Status = models.EnrollmentStatusActive
	e.CompletedAt = nil
	return nil
}

func (f *fakeStore) UpsertLessonProgress(ctx context.Context, progress *models.LessonProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{progress.LearnerID, progress.LessonID}
	if existing, ok := f.progress[key]; ok {
		existing.Completed = progress.Completed
		existing.CompletedAt = progress.CompletedAt
		existing.UpdatedAt = time.Now()
		progress.ID = existing.ID
		return nil
	}
	progress.ID = f.id()
	progress.UpdatedAt = time.Now()
	cp := *progress
	f.progress[key] = &cp
	return nil
}

func (f *fakeStore) GetLessonProgressByCourse(ctx context.Context, learnerID, courseID int64) ([]models.LessonProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LessonProgress
	for key, p := range f.progress {
		if key.a != learnerID {
			continue
		}
		if lesson, ok := f.lessons[key.b]; ok && lesson.CourseID == courseID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) CountCourseProgress(ctx context.Context, learnerID, courseID int64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, completed := 0, 0
	for _, lesson := range f.lessons {
		if lesson.CourseID != courseID {
			continue
		}
		total++
		if p, ok := f.progress[pairKey{learnerID, lesson.ID}]; ok && p.Completed {
			completed++
		}
	}
	return total, completed, nil
}

func (f *fakeStore) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beforeCreateCertificate != nil {
		hook := f.beforeCreateCertificate
		f.beforeCreateCertificate = nil
		hook()
	}
	if f.createCertificateErr != nil {
		return f.createCertificateErr
	}
	key := pairKey{cert.LearnerID, cert.CourseID}
	if _, exists := f.certificates[key]; exists {
		return uniqueViolation()
	}
	if _, exists := f.certsByCode[cert.VerificationCode]; exists {
		return uniqueViolation()
	}
	cert.ID = f.id()
	cp := *cert
	f.certificates[key] = &cp
	f.certsByCode[cert.VerificationCode] = &cp
	return nil
}

func (f *fakeStore) GetCertificate(ctx context.Context, learnerID, courseID int64) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.certificates[pairKey{learnerID, courseID}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.certsByCode[code]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetCertificatesByLearnerID(ctx context.Context, learnerID int64) ([]models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Certificate
	for key, c := range f.certificates {
		if key.a == learnerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) VerificationCodeExists(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.certsByCode[code]
	return ok, nil
}

func (f *fakeStore) GetCompanyByID(ctx context.Context, id int64) (*models.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return nil, fmt.Errorf("company not found: %d", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ClaimSeat(ctx context.Context, companyID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[companyID]
	if !ok {
		return false, fmt.Errorf("company not found: %d", companyID)
	}
	if c.ActiveSeats >= c.SeatLimit {
		return false, nil
	}
	c.ActiveSeats++
	return true, nil
}

func (f *fakeStore) ReleaseSeat(ctx context.Context, companyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.companies[companyID]; ok && c.ActiveSeats > 0 {
		c.ActiveSeats--
	}
	return nil
}

func (f *fakeStore) CreateInvitation(ctx context.Context, inv *models.CompanyInvitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.ID = f.id()
	inv.CreatedAt = time.Now()
	cp := *inv
	f.invitations[inv.ID] = &cp
	return nil
}

func (f *fakeStore) GetInvitationByToken(ctx context.Context, token string) (*models.CompanyInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetPendingInvitationByEmail(ctx context.Context, companyID int64, email string) (*models.CompanyInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.CompanyID == companyID && inv.Email == email && inv.AcceptedAt == nil {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetInvitationsByCompanyID(ctx context.Context, companyID int64) ([]models.CompanyInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CompanyInvitation
	for _, inv := range f.invitations {
		if inv.CompanyID == companyID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteInvitationByEmail(ctx context.Context, companyID int64, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, inv := range f.invitations {
		if inv.CompanyID == companyID && inv.Email == email && inv.AcceptedAt == nil {
			delete(f.invitations, id)
		}
	}
	return nil
}

func (f *fakeStore) DeleteInvitation(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invitations[id]; !ok {
		return fmt.Errorf("invitation not found: %d", id)
	}
	delete(f.invitations, id)
	return nil
}

func (f *fakeStore) AcceptInvitation(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[id]
	if !ok || inv.AcceptedAt != nil {
		return false, nil
	}
	now := time.Now()
	inv.AcceptedAt = &now
	return true, nil
}

// fakeCache is an in-memory Cache mirroring the redis seat counter and
// progress cache semantics
type fakeCache struct {
	mu sync.Mutex

	seats    map[int64]*seatCounter
	progress map[pairKey]*models.CourseProgress
	locks    map[string]bool

	reserveErr error
}

type seatCounter struct {
	limit, used int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		seats:    make(map[int64]*seatCounter),
		progress: make(map[pairKey]*models.CourseProgress),
		locks:    make(map[string]bool),
	}
}

func (f *fakeCache) ReserveSeat(ctx context.Context, companyID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return false, f.reserveErr
	}
	s, ok := f.seats[companyID]
	if !ok {
		return false, fmt.Errorf("seat counter not initialized")
	}
	if s.used >= s.limit {
		return false, nil
	}
	s.used++
	return true, nil
}

func (f *fakeCache) ReleaseSeat(ctx context.Context, companyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.seats[companyID]; ok && s.used > 0 {
		s.used--
	}
	return nil
}

func (f *fakeCache) InitSeats(ctx context.Context, companyID int64, limit, used int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[companyID] = &seatCounter{limit: limit, used: used}
	return nil
}

func (f *fakeCache) GetCachedProgress(ctx context.Context, learnerID, courseID int64) (*models.CourseProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.progress[pairKey{learnerID, courseID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCache) SetCachedProgress(ctx context.Context, learnerID, courseID int64, progress *models.CourseProgress, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *progress
	f.progress[pairKey{learnerID, courseID}] = &cp
	return nil
}

func (f *fakeCache) InvalidateProgress(ctx context.Context, learnerID, courseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.progress, pairKey{learnerID, courseID})
	return nil
}

func (f *fakeCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[lockKey] {
		return false, nil
	}
	f.locks[lockKey] = true
	return true, nil
}

func (f *fakeCache) ReleaseLock(ctx context.Context, lockKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, lockKey)
	return nil
}

// fakePublisher records emitted events
type fakePublisher struct {
	mu sync.Mutex

	enrollmentCreated []*models.EnrollmentCreatedEvent
	lessonCompleted   []*models.LessonCompletedEvent
	courseCompleted   []*models.CourseCompletedEvent
	certIssued        []*models.CertificateIssuedEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (f *fakePublisher) PublishEnrollmentCreated(ctx context.Context, event *models.EnrollmentCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollmentCreated = append(f.enrollmentCreated, event)
	return nil
}

func (f *fakePublisher) PublishLessonCompleted(ctx context.Context, event *models.LessonCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lessonCompleted = append(f.lessonCompleted, event)
	return nil
}

func (f *fakePublisher) PublishCourseCompleted(ctx context.Context, event *models.CourseCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courseCompleted = append(f.courseCompleted, event)
	return nil
}

func (f *fakePublisher) PublishCertificateIssued(ctx context.Context, event *models.CertificateIssuedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certIssued = append(f.certIssued, event)
	return nil
}
