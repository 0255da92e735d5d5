package payment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusOf(t *testing.T, months []MonthStatus, month Month) MonthStatus {
	t.Helper()
	for _, m := range months {
		if m.Month == month {
			return m
		}
	}
	t.Fatalf("month %s missing from ledger", month)
	return MonthStatus{}
}

func TestDeriveLedger(t *testing.T) {
	t.Run("EmptyHistory", func(t *testing.T) {
		months := DeriveLedger(nil)

		require.Len(t, months, 10)
		for i, m := range months {
			assert.Equal(t, Months[i], m.Month)
			assert.Equal(t, i+2, m.Index)
			assert.Equal(t, StatusNotGenerated, m.Status)
			assert.Equal(t, "create", m.Action)
			assert.Nil(t, m.Payment)
		}
	})

	t.Run("PaidAndNotGenerated", func(t *testing.T) {
		months := DeriveLedger([]Payment{
			{ID: 1, StudentID: 7, Month: Marzo, Fines: 0, PaymentMade: true},
		})

		marzo := statusOf(t, months, Marzo)
		assert.Equal(t, StatusPaid, marzo.Status)
		assert.Equal(t, "Pagado", marzo.Label)
		assert.Equal(t, "update", marzo.Action)
		require.NotNil(t, marzo.Payment)
		assert.Equal(t, 1, marzo.Payment.ID)

		assert.Equal(t, StatusNotGenerated, statusOf(t, months, Abril).Status)
	})

	t.Run("FinesOverridePaymentMade", func(t *testing.T) {
		months := DeriveLedger([]Payment{
			{ID: 2, StudentID: 7, Month: Mayo, Fines: 15000, PaymentMade: true},
		})

		assert.Equal(t, StatusOverdue, statusOf(t, months, Mayo).Status)
	})

	t.Run("PendingWithoutPayment", func(t *testing.T) {
		months := DeriveLedger([]Payment{
			{ID: 3, StudentID: 7, Month: Junio},
		})

		assert.Equal(t, StatusPending, statusOf(t, months, Junio).Status)
	})

	t.Run("UnknownMonthIgnored", func(t *testing.T) {
		months := DeriveLedger([]Payment{
			{ID: 4, StudentID: 7, Month: "Diciembre", PaymentMade: true},
		})

		require.Len(t, months, 10)
		assert.Equal(t, 10, Summarize(months).NotGenerated)
	})

	t.Run("LaterDuplicateWins", func(t *testing.T) {
		months := DeriveLedger([]Payment{
			{ID: 5, Month: Julio, Fines: 100},
			{ID: 6, Month: Julio, PaymentMade: true},
		})

		julio := statusOf(t, months, Julio)
		assert.Equal(t, StatusPaid, julio.Status)
		assert.Equal(t, 6, julio.Payment.ID)
	})

	t.Run("Deterministic", func(t *testing.T) {
		payments := []Payment{
			{ID: 1, Month: Febrero, PaymentMade: true},
			{ID: 2, Month: Octubre, Fines: 20},
		}
		assert.Equal(t, DeriveLedger(payments), DeriveLedger(payments))
	})
}

func TestSummarize(t *testing.T) {
	months := DeriveLedger([]Payment{
		{Month: Febrero, PaymentMade: true},
		{Month: Marzo, PaymentMade: true},
		{Month: Abril, Fines: 15000, PaymentMade: true},
		{Month: Mayo, Fines: 500.5},
		{Month: Junio},
	})

	s := Summarize(months)
	assert.Equal(t, 2, s.Paid)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 2, s.Overdue)
	assert.Equal(t, 5, s.NotGenerated)
	assert.InDelta(t, 15500.5, float64(s.OutstandingFines), 0.001)
}

func TestFinesDecoding(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Fines
		wantErr bool
	}{
		{name: "DecimalString", input: `"15000.00"`, want: 15000},
		{name: "Number", input: `250.5`, want: 250.5},
		{name: "Null", input: `null`, want: 0},
		{name: "EmptyString", input: `""`, want: 0},
		{name: "NonNumeric", input: `"quince mil"`, wantErr: true},
		{name: "Negative", input: `"-10"`, wantErr: true},
		{name: "NaN", input: `"NaN"`, wantErr: true},
		{name: "Inf", input: `"Inf"`, wantErr: true},
		{name: "Infinity", input: `"-Infinity"`, wantErr: true},
		{name: "HexFloat", input: `"0x1p4"`, wantErr: true},
		{name: "Exponent", input: `"1e400"`, wantErr: true},
		{name: "LeadingSpace", input: `" 15"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payment
			err := json.Unmarshal([]byte(`{"id":1,"multas":`+tt.input+`}`), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Fines)
		})
	}

	t.Run("EncodesAsDecimalString", func(t *testing.T) {
		data, err := json.Marshal(Payment{Fines: 15000})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"multas":"15000.00"`)
	})
}

func TestLedgerCache(t *testing.T) {
	t.Run("StoreAndLookup", func(t *testing.T) {
		cache := NewLedgerCache(time.Minute)
		_, version, ok := cache.Lookup(1)
		assert.False(t, ok)

		assert.True(t, cache.Store(1, version, &Ledger{StudentID: 1}))
		l, _, ok := cache.Lookup(1)
		assert.True(t, ok)
		assert.Equal(t, 1, l.StudentID)
	})

	t.Run("EntriesExpire", func(t *testing.T) {
		cache := NewLedgerCache(time.Minute)
		clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
		cache.now = func() time.Time { return clock }

		_, version, _ := cache.Lookup(1)
		require.True(t, cache.Store(1, version, &Ledger{StudentID: 1}))

		clock = clock.Add(59 * time.Second)
		_, _, ok := cache.Lookup(1)
		assert.True(t, ok)

		clock = clock.Add(time.Second)
		_, _, ok = cache.Lookup(1)
		assert.False(t, ok)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("ZeroTTLDisablesCaching", func(t *testing.T) {
		cache := NewLedgerCache(0)
		_, version, _ := cache.Lookup(1)

		assert.False(t, cache.Store(1, version, &Ledger{StudentID: 1}))
		_, _, ok := cache.Lookup(1)
		assert.False(t, ok)
	})

	t.Run("InvalidateDropsStaleStore", func(t *testing.T) {
		cache := NewLedgerCache(time.Minute)
		_, version, _ := cache.Lookup(1)

		cache.Invalidate(1)

		assert.False(t, cache.Store(1, version, &Ledger{StudentID: 1}))
		assert.Equal(t, 0, cache.Len())
	})
}
