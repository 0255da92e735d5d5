package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// Month is one of the ten academic months a route payment can target.
type Month string

const (
	Febrero    Month = "Febrero"
	Marzo      Month = "Marzo"
	Abril      Month = "Abril"
	Mayo       Month = "Mayo"
	Junio      Month = "Junio"
	Julio      Month = "Julio"
	Agosto     Month = "Agosto"
	Septiembre Month = "Septiembre"
	Octubre    Month = "Octubre"
	Noviembre  Month = "Noviembre"
)

// Months is the academic calendar in display order.
var Months = [...]Month{Febrero, Marzo, Abril, Mayo, Junio, Julio, Agosto, Septiembre, Octubre, Noviembre}

// Index returns the calendar month number (Febrero=2 … Noviembre=11), or 0
// for a name outside the academic calendar.
func (m Month) Index() int {
	for i, month := range Months {
		if month == m {
			return i + 2
		}
	}
	return 0
}

func (m Month) Valid() bool {
	return m.Index() != 0
}

// Fines is an outstanding penalty amount. On the wire it is a decimal that
// the pagos service renders as a string ("15000.00"); numbers are accepted
// too. Anything else fails decoding instead of silently becoming zero.
type Fines float64

// decimalAmount is the plain decimal syntax the pagos service emits.
// ParseFloat alone would also take special values and hex floats.
var decimalAmount = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

func (f Fines) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(f), 'f', 2, 64))
}

func (f *Fines) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("multas: %w", err)
		}
		if raw == "" {
			*f = 0
			return nil
		}
	}

	if !decimalAmount.MatchString(raw) {
		return fmt.Errorf("multas: invalid amount %q", raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("multas: invalid amount %q", raw)
	}
	if v < 0 {
		return fmt.Errorf("multas: negative amount %q", raw)
	}
	*f = Fines(v)
	return nil
}

type Payment struct {
	bun.BaseModel `bun:"table:pagos,alias:p"`

	ID           int    `bun:"id,pk,autoincrement" json:"id"`
	StudentID    int    `bun:"estudiante_id,notnull,unique:student_month" json:"estudiante_id"`
	Month        Month  `bun:"mes_a_pagar,notnull,unique:student_month" json:"mes_a_pagar"`
	TicketNumber string `bun:"numero_talonario,notnull,unique" json:"numero_talonario"`
	PaymentDate  string `bun:"fecha_de_pago,notnull" json:"fecha_de_pago"`
	Fines        Fines  `bun:"multas,type:numeric(12,2),notnull,default:0" json:"multas"`
	FinesPaid    bool   `bun:"pago_multas,notnull,default:false" json:"pago_multas"`
	PaymentMade  bool   `bun:"estado_pago,notnull,default:false" json:"estado_pago"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"-"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"-"`
}

type CreatePaymentRequest struct {
	StudentID    int    `json:"estudiante_id" validate:"required,gt=0"`
	Month        Month  `json:"mes_a_pagar" validate:"required,academic_month"`
	TicketNumber string `json:"numero_talonario" validate:"required,max=50"`
	PaymentDate  string `json:"fecha_de_pago" validate:"required,datetime=2006-01-02"`
}

type UpdatePaymentRequest struct {
	TicketNumber string `json:"numero_talonario" validate:"required,max=50"`
	PaymentDate  string `json:"fecha_de_pago" validate:"required,datetime=2006-01-02"`
	FinesPaid    bool   `json:"pago_multas"`
}

// ChangeEvent is published after every successful mutation so other
// instances drop their cached ledger for the student.
type ChangeEvent struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	PaymentID int    `json:"payment_id"`
	StudentID int    `json:"student_id"`
	Month     Month  `json:"month"`
	// UserID is the console user behind the change, 0 when unauthenticated.
	UserID int `json:"user_id,omitempty"`
}

const ChangeEventType = "payment.changed"

// EventKey partitions payment events by student.
func (e ChangeEvent) EventKey() string {
	return strconv.Itoa(e.StudentID)
}
