package payment

import (
	"sync"
	"time"
)

type Status string

const (
	StatusNotGenerated Status = "not_generated"
	StatusPending      Status = "pending"
	StatusPaid         Status = "paid"
	StatusOverdue      Status = "overdue"
)

// Label is the text the console shows for the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pendiente"
	case StatusPaid:
		return "Pagado"
	case StatusOverdue:
		return "Vencido"
	default:
		return "No generado"
	}
}

// MonthStatus is one cell of the ledger. Payment is nil for months without
// a record.
type MonthStatus struct {
	Month   Month    `json:"month"`
	Index   int      `json:"index"`
	Status  Status   `json:"status"`
	Label   string   `json:"label"`
	Action  string   `json:"next_action"`
	Payment *Payment `json:"payment,omitempty"`
}

// Summary aggregates a ledger for the student header.
type Summary struct {
	Paid             int   `json:"paid"`
	Pending          int   `json:"pending"`
	Overdue          int   `json:"overdue"`
	NotGenerated     int   `json:"not_generated"`
	OutstandingFines Fines `json:"outstanding_fines"`
}

type Ledger struct {
	StudentID int           `json:"estudiante_id"`
	Months    []MonthStatus `json:"months"`
	Summary   Summary       `json:"summary"`
}

// Classify returns the status of a month given its record (nil when none).
// Fines take precedence over the payment-made flag.
func Classify(p *Payment) Status {
	switch {
	case p == nil:
		return StatusNotGenerated
	case p.Fines > 0:
		return StatusOverdue
	case p.PaymentMade:
		return StatusPaid
	default:
		return StatusPending
	}
}

// DeriveLedger maps a student's payments onto the academic calendar. It
// always returns one entry per month in calendar order. Records for months
// outside the calendar are ignored; if two records target the same month
// the later one wins.
func DeriveLedger(payments []Payment) []MonthStatus {
	byMonth := make(map[Month]*Payment, len(payments))
	for i := range payments {
		p := payments[i]
		byMonth[p.Month] = &p
	}

	months := make([]MonthStatus, 0, len(Months))
	for _, month := range Months {
		p := byMonth[month]
		status := Classify(p)

		action := "update"
		if status == StatusNotGenerated {
			action = "create"
		}

		months = append(months, MonthStatus{
			Month:   month,
			Index:   month.Index(),
			Status:  status,
			Label:   status.Label(),
			Action:  action,
			Payment: p,
		})
	}
	return months
}

func Summarize(months []MonthStatus) Summary {
	var s Summary
	for _, m := range months {
		switch m.Status {
		case StatusPaid:
			s.Paid++
		case StatusPending:
			s.Pending++
		case StatusOverdue:
			s.Overdue++
		default:
			s.NotGenerated++
		}
		if m.Payment != nil {
			s.OutstandingFines += m.Payment.Fines
		}
	}
	return s
}

// LedgerCache keeps derived ledgers per student for at most ttl, since
// fines can be levied upstream without any local mutation. Every entry
// carries the version it was read under; Store drops results whose version
// was bumped by an Invalidate in the meantime, so a read racing a mutation
// never caches pre-mutation data. A ttl of zero disables caching.
type LedgerCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	ledgers  map[int]cachedLedger
	versions map[int]uint64
}

type cachedLedger struct {
	ledger   *Ledger
	storedAt time.Time
}

func NewLedgerCache(ttl time.Duration) *LedgerCache {
	return &LedgerCache{
		ttl:      ttl,
		now:      time.Now,
		ledgers:  make(map[int]cachedLedger),
		versions: make(map[int]uint64),
	}
}

// Lookup returns the cached ledger (if any and still fresh) and the version
// a fresh read must present to Store.
func (c *LedgerCache) Lookup(studentID int) (*Ledger, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.ledgers[studentID]
	if ok && c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.ledgers, studentID)
		ok = false
	}
	return entry.ledger, c.versions[studentID], ok
}

func (c *LedgerCache) Store(studentID int, version uint64, l *Ledger) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 || c.versions[studentID] != version {
		return false
	}
	c.ledgers[studentID] = cachedLedger{ledger: l, storedAt: c.now()}
	return true
}

func (c *LedgerCache) Invalidate(studentID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.ledgers, studentID)
	c.versions[studentID]++
}

func (c *LedgerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ledgers)
}
