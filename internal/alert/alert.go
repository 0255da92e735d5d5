// Package alert holds the rules that turn entity snapshots into candidate
// notifications. Rules are pure and perform no I/O.
package alert

import (
	"fmt"
	"time"

	"schooltrans-service/internal/backend"
)

type Kind string

const (
	KindDriver  Kind = "driver"
	KindRoute   Kind = "route"
	KindStudent Kind = "student"
)

// Kinds lists every alert kind in evaluation order.
var Kinds = []Kind{KindDriver, KindRoute, KindStudent}

func (k Kind) Valid() bool {
	switch k {
	case KindDriver, KindRoute, KindStudent:
		return true
	}
	return false
}

// Candidate is a potential notification produced by one rule pass.
type Candidate struct {
	Kind     Kind
	EntityID int
	Name     string
	Date     string
	Message  string
}

// StudentPolicy decides whether an inactive student is reported as
// inactive for non-payment.
type StudentPolicy struct {
	InactiveMeansNonPayment bool
}

const dateLayout = "2006-01-02"

// LicenseExpired reports every driver whose license is flagged inactive.
// The flag is authoritative; the expiry date is only shown.
func LicenseExpired(drivers []backend.Driver) []Candidate {
	var out []Candidate
	for _, d := range drivers {
		if d.LicenseActive {
			continue
		}
		name := d.FullName()
		out = append(out, Candidate{
			Kind:     KindDriver,
			EntityID: d.ID,
			Name:     name,
			Date:     d.LicenseExpiry,
			Message:  fmt.Sprintf("El conductor %s tiene vencida la licencia de conducción.", name),
		})
	}
	return out
}

func RouteInactive(routes []backend.Route) []Candidate {
	var out []Candidate
	for _, r := range routes {
		if r.Active {
			continue
		}
		out = append(out, Candidate{
			Kind:     KindRoute,
			EntityID: r.ID,
			Name:     r.Name,
			Message:  fmt.Sprintf("La ruta %s está inactiva, revisa los documentos asociados a este vehiculo.", r.Name),
		})
	}
	return out
}

// StudentInactive reports inactive students dated with the evaluation day.
// It yields nothing unless the policy ties inactivity to non-payment.
func StudentInactive(students []backend.Student, now time.Time, policy StudentPolicy) []Candidate {
	if !policy.InactiveMeansNonPayment {
		return nil
	}

	date := now.Format(dateLayout)
	var out []Candidate
	for _, s := range students {
		if s.Active {
			continue
		}
		name := s.FullName()
		out = append(out, Candidate{
			Kind:     KindStudent,
			EntityID: s.ID,
			Name:     name,
			Date:     date,
			Message:  fmt.Sprintf("El estudiante %s está inactivo por falta de pago.", name),
		})
	}
	return out
}
