package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"schooltrans-service/internal/backend"
)

type restRepository struct {
	client *backend.Client
}

// NewRESTRepository stores payments in the remote pagos service.
func NewRESTRepository(c *backend.Client) Repository {
	return &restRepository{client: c}
}

// pagoBody is what the pagos service accepts on create and update.
type pagoBody struct {
	StudentID    int    `json:"estudiante_id"`
	Month        Month  `json:"mes_a_pagar"`
	TicketNumber string `json:"numero_talonario"`
	PaymentDate  string `json:"fecha_de_pago"`
	Fines        Fines  `json:"multas"`
	FinesPaid    bool   `json:"pago_multas"`
	PaymentMade  bool   `json:"estado_pago"`
}

func bodyFor(p *Payment) pagoBody {
	return pagoBody{
		StudentID:    p.StudentID,
		Month:        p.Month,
		TicketNumber: p.TicketNumber,
		PaymentDate:  p.PaymentDate,
		Fines:        p.Fines,
		FinesPaid:    p.FinesPaid,
		PaymentMade:  p.PaymentMade,
	}
}

func (r *restRepository) ListByStudent(ctx context.Context, studentID int) ([]Payment, error) {
	var all []Payment
	path := fmt.Sprintf("/api/pagos/?estudiante_id=%d", studentID)
	if err := r.client.Do(ctx, http.MethodGet, path, nil, &all); err != nil {
		return nil, err
	}

	// The service may ignore the filter and return every record.
	payments := make([]Payment, 0, len(all))
	for _, p := range all {
		if p.StudentID == studentID {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func (r *restRepository) GetByID(ctx context.Context, id int) (*Payment, error) {
	payment := new(Payment)
	err := r.client.Do(ctx, http.MethodGet, fmt.Sprintf("/api/pagos/%d/", id), nil, payment)
	if err != nil {
		return nil, mapRemoteError(err)
	}
	return payment, nil
}

func (r *restRepository) Create(ctx context.Context, payment *Payment) error {
	err := r.client.Do(ctx, http.MethodPost, "/api/pagos/", bodyFor(payment), payment)
	return mapRemoteError(err)
}

func (r *restRepository) Update(ctx context.Context, payment *Payment) error {
	path := fmt.Sprintf("/api/pagos/%d/", payment.ID)
	err := r.client.Do(ctx, http.MethodPut, path, bodyFor(payment), payment)
	return mapRemoteError(err)
}

func (r *restRepository) Delete(ctx context.Context, id int) error {
	err := r.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/pagos/%d", id), nil, nil)
	return mapRemoteError(err)
}

func mapRemoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, backend.ErrNotFound) {
		return ErrPaymentNotFound
	}

	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) && (statusErr.Status == http.StatusBadRequest || statusErr.Status == http.StatusConflict) {
		switch {
		case strings.Contains(statusErr.Body, "numero_talonario"):
			return ErrDuplicateTicketNumber
		case strings.Contains(statusErr.Body, "mes_a_pagar"):
			return ErrMonthAlreadyRecorded
		}
	}
	return err
}
