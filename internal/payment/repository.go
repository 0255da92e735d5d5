package payment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"schooltrans-service/internal/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Repository is the payment store. Both the Postgres table and the
// remote pagos service satisfy it.
type Repository interface {
	ListByStudent(ctx context.Context, studentID int) ([]Payment, error)
	GetByID(ctx context.Context, id int) (*Payment, error)
	Create(ctx context.Context, payment *Payment) error
	Update(ctx context.Context, payment *Payment) error
	Delete(ctx context.Context, id int) error
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) ListByStudent(ctx context.Context, studentID int) ([]Payment, error) {
	start := time.Now()
	var payments []Payment
	err := r.db.NewSelect().
		Model(&payments).
		Where("estudiante_id = ?", studentID).
		Order("id ASC").
		Scan(ctx)

	r.metrics.RecordQuery(ctx, "select", "pagos", time.Since(start), err)

	return payments, err
}

func (r *repository) GetByID(ctx context.Context, id int) (*Payment, error) {
	start := time.Now()
	payment := new(Payment)
	err := r.db.NewSelect().Model(payment).Where("id = ?", id).Scan(ctx)

	r.metrics.RecordQuery(ctx, "select", "pagos", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (r *repository) Create(ctx context.Context, payment *Payment) error {
	start := time.Now()
	_, err := r.db.NewInsert().Model(payment).Returning("*").Exec(ctx)

	r.metrics.RecordQuery(ctx, "insert", "pagos", time.Since(start), err)

	return mapConstraintError(err)
}

func (r *repository) Update(ctx context.Context, payment *Payment) error {
	start := time.Now()
	payment.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(payment).
		Column("numero_talonario", "fecha_de_pago", "multas", "pago_multas", "estado_pago", "updated_at").
		WherePK().
		Exec(ctx)

	r.metrics.RecordQuery(ctx, "update", "pagos", time.Since(start), err)

	if err != nil {
		return mapConstraintError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int) error {
	start := time.Now()
	payment := &Payment{ID: id}
	result, err := r.db.NewDelete().Model(payment).WherePK().Exec(ctx)

	r.metrics.RecordQuery(ctx, "delete", "pagos", time.Since(start), err)

	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// mapConstraintError turns unique violations into domain errors.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || !pgErr.IntegrityViolation() {
		return err
	}
	if pgErr.Field('C') != "23505" {
		return err
	}

	detail := pgErr.Field('n') + " " + pgErr.Field('D')
	switch {
	case strings.Contains(detail, "numero_talonario"):
		return ErrDuplicateTicketNumber
	case strings.Contains(detail, "mes_a_pagar"):
		return ErrMonthAlreadyRecorded
	}
	return err
}
