package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"schooltrans-service/internal/auth"
	"schooltrans-service/internal/metrics"

	"github.com/go-playground/validator/v10"
)

// Producer publishes change events (NATS or Kafka).
type Producer interface {
	SendMessage(ctx context.Context, value interface{}) error
}

type Service interface {
	Ledger(ctx context.Context, studentID int) (*Ledger, error)
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	UpdatePayment(ctx context.Context, id int, req UpdatePaymentRequest) (*Payment, error)
	DeletePayment(ctx context.Context, id int) error
	// InvalidateLedger drops the cached ledger of a student; used when
	// another instance reports a change.
	InvalidateLedger(studentID int)
}

type service struct {
	repo     Repository
	cache    *LedgerCache
	producer Producer
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService wires the mutation gateway. producer may be nil when events
// are disabled. Derived ledgers are reused for cacheTTL; zero re-reads on
// every call.
func NewService(repo Repository, producer Producer, cacheTTL time.Duration, logger *slog.Logger, m *metrics.Metrics) Service {
	return &service{
		repo:     repo,
		cache:    NewLedgerCache(cacheTTL),
		producer: producer,
		validate: newValidator(),
		logger:   logger,
		metrics:  m,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("academic_month", func(fl validator.FieldLevel) bool {
		return Month(fl.Field().String()).Valid()
	})
	return v
}

func (s *service) Ledger(ctx context.Context, studentID int) (*Ledger, error) {
	if studentID <= 0 {
		return nil, invalidField("estudiante_id", "gt")
	}

	cached, version, ok := s.cache.Lookup(studentID)
	if ok {
		return cached, nil
	}

	payments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	months := DeriveLedger(payments)
	ledger := &Ledger{
		StudentID: studentID,
		Months:    months,
		Summary:   Summarize(months),
	}
	s.cache.Store(studentID, version, ledger)
	s.metrics.RecordLedgerDerived(ctx)

	return ledger, nil
}

func (s *service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	req.TicketNumber = strings.TrimSpace(req.TicketNumber)
	if err := s.check(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.Month == req.Month {
			s.metrics.RecordPaymentMutation(ctx, "create", ErrMonthAlreadyRecorded)
			s.cache.Invalidate(req.StudentID)
			return nil, ErrMonthAlreadyRecorded
		}
	}

	payment := &Payment{
		StudentID:    req.StudentID,
		Month:        req.Month,
		TicketNumber: req.TicketNumber,
		PaymentDate:  req.PaymentDate,
		PaymentMade:  true,
	}

	s.logger.InfoContext(ctx, "creating payment",
		"student_id", req.StudentID, "month", req.Month, "ticket", req.TicketNumber)

	err = s.repo.Create(ctx, payment)
	s.metrics.RecordPaymentMutation(ctx, "create", err)
	s.cache.Invalidate(req.StudentID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "create", payment)
	return payment, nil
}

func (s *service) UpdatePayment(ctx context.Context, id int, req UpdatePaymentRequest) (*Payment, error) {
	if id <= 0 {
		return nil, invalidField("id", "gt")
	}
	req.TicketNumber = strings.TrimSpace(req.TicketNumber)
	if err := s.check(req); err != nil {
		return nil, err
	}

	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	payment.TicketNumber = req.TicketNumber
	payment.PaymentDate = req.PaymentDate
	payment.PaymentMade = true
	payment.FinesPaid = req.FinesPaid
	if req.FinesPaid {
		// A settled fine no longer counts as outstanding
		payment.Fines = 0
	}

	s.logger.InfoContext(ctx, "updating payment",
		"payment_id", id, "student_id", payment.StudentID, "month", payment.Month, "fines_paid", req.FinesPaid)

	err = s.repo.Update(ctx, payment)
	s.metrics.RecordPaymentMutation(ctx, "update", err)
	s.cache.Invalidate(payment.StudentID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "update", payment)
	return payment, nil
}

func (s *service) DeletePayment(ctx context.Context, id int) error {
	if id <= 0 {
		return invalidField("id", "gt")
	}

	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "clearing payment",
		"payment_id", id, "student_id", payment.StudentID, "month", payment.Month)

	err = s.repo.Delete(ctx, id)
	s.metrics.RecordPaymentMutation(ctx, "delete", err)
	s.cache.Invalidate(payment.StudentID)
	if err != nil {
		return err
	}

	s.publish(ctx, "delete", payment)
	return nil
}

func (s *service) InvalidateLedger(studentID int) {
	s.cache.Invalidate(studentID)
}

func (s *service) check(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: jsonFieldName(fe.Field()), Rule: fe.Tag()})
	}
	return &ValidationError{Fields: fields}
}

func (s *service) publish(ctx context.Context, action string, p *Payment) {
	userID, _ := auth.GetUserID(ctx)
	s.logger.InfoContext(ctx, "payment changed",
		"action", action, "payment_id", p.ID, "student_id", p.StudentID, "user_id", userID)

	if s.producer == nil {
		return
	}
	event := ChangeEvent{
		Type:      ChangeEventType,
		Action:    action,
		PaymentID: p.ID,
		StudentID: p.StudentID,
		Month:     p.Month,
		UserID:    userID,
	}
	if err := s.producer.SendMessage(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish payment event", "action", action, "error", err)
	}
}

var jsonFieldNames = map[string]string{
	"StudentID":    "estudiante_id",
	"Month":        "mes_a_pagar",
	"TicketNumber": "numero_talonario",
	"PaymentDate":  "fecha_de_pago",
	"FinesPaid":    "pago_multas",
}

func jsonFieldName(field string) string {
	if name, ok := jsonFieldNames[field]; ok {
		return name
	}
	return field
}
