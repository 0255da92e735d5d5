package payment_test

import (
	"context"
	"testing"

	"schooltrans-service/internal/metrics"
	"schooltrans-service/internal/payment"
	"schooltrans-service/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryWithPostgres(t *testing.T) {
	pgContainer := testdb.SetupSharedPostgres(t)
	defer pgContainer.Cleanup(t)

	pgContainer.CreateTables(t, (*payment.Payment)(nil))
	repo := payment.NewRepository(pgContainer.DB, metrics.NewMock())
	ctx := context.Background()

	newPayment := func(student int, month payment.Month, ticket string) *payment.Payment {
		return &payment.Payment{
			StudentID:    student,
			Month:        month,
			TicketNumber: ticket,
			PaymentDate:  "2024-03-01",
			PaymentMade:  true,
		}
	}

	t.Run("CreateAndList", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "pagos")

		p := newPayment(1, payment.Marzo, "100")
		require.NoError(t, repo.Create(ctx, p))
		assert.NotZero(t, p.ID)
		require.NoError(t, repo.Create(ctx, newPayment(2, payment.Marzo, "101")))

		payments, err := repo.ListByStudent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, payment.Marzo, payments[0].Month)
		assert.True(t, payments[0].PaymentMade)
	})

	t.Run("DuplicateTicket", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "pagos")

		require.NoError(t, repo.Create(ctx, newPayment(1, payment.Marzo, "200")))
		err := repo.Create(ctx, newPayment(2, payment.Abril, "200"))
		assert.ErrorIs(t, err, payment.ErrDuplicateTicketNumber)
	})

	t.Run("DuplicateMonth", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "pagos")

		require.NoError(t, repo.Create(ctx, newPayment(1, payment.Marzo, "300")))
		err := repo.Create(ctx, newPayment(1, payment.Marzo, "301"))
		assert.ErrorIs(t, err, payment.ErrMonthAlreadyRecorded)
	})

	t.Run("UpdateClearsFines", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "pagos")

		p := newPayment(1, payment.Mayo, "400")
		p.Fines = 15000
		require.NoError(t, repo.Create(ctx, p))

		p.Fines = 0
		p.FinesPaid = true
		require.NoError(t, repo.Update(ctx, p))

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.Fines(0), got.Fines)
		assert.True(t, got.FinesPaid)
	})

	t.Run("NotFound", func(t *testing.T) {
		testdb.CleanupTables(t, pgContainer.DB, "pagos")

		_, err := repo.GetByID(ctx, 999)
		assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

		err = repo.Update(ctx, &payment.Payment{ID: 999, TicketNumber: "x"})
		assert.ErrorIs(t, err, payment.ErrPaymentNotFound)

		assert.ErrorIs(t, repo.Delete(ctx, 999), payment.ErrPaymentNotFound)
	})
}
