// Package emi computes equated monthly installments for a loan, the same
// closed-form amortization the site's calculator widget uses.
package emi

import (
	"errors"
	"math"
)

const (
	MaxMonths     = 600
	MaxAnnualRate = 100
)

var (
	ErrPrincipal = errors.New("principal must be positive")
	ErrRate      = errors.New("annual rate must be between 0 and 100 percent")
	ErrMonths    = errors.New("tenure must be between 1 and 600 months")
	ErrOverflow  = errors.New("loan amounts too large to compute")
)

type Loan struct {
	Principal  float64 `json:"principal"`
	AnnualRate float64 `json:"annualRate"` // percent, e.g. 8.5
	Months     int     `json:"months"`
}

type Result struct {
	MonthlyPayment float64 `json:"monthlyPayment"`
	TotalPayment   float64 `json:"totalPayment"`
	TotalInterest  float64 `json:"totalInterest"`
}

type Installment struct {
	Month     int     `json:"month"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
}

func (l Loan) Validate() error {
	switch {
	case !(l.Principal > 0) || math.IsInf(l.Principal, 0):
		return ErrPrincipal
	case !(l.AnnualRate >= 0 && l.AnnualRate <= MaxAnnualRate):
		return ErrRate
	case l.Months < 1 || l.Months > MaxMonths:
		return ErrMonths
	}
	return nil
}

func (l Loan) monthlyRate() float64 {
	return l.AnnualRate / 12 / 100
}

// payment is the unrounded installment.
func (l Loan) payment() float64 {
	r := l.monthlyRate()
	n := float64(l.Months)
	if r == 0 {
		return l.Principal / n
	}
	growth := math.Pow(1+r, n)
	return l.Principal * r * growth / (growth - 1)
}

func Calculate(l Loan) (Result, error) {
	if err := l.Validate(); err != nil {
		return Result{}, err
	}

	emi := l.payment()
	total := emi * float64(l.Months)
	if !finite(emi) || !finite(total) {
		return Result{}, ErrOverflow
	}
	return Result{
		MonthlyPayment: round2(emi),
		TotalPayment:   round2(total),
		TotalInterest:  round2(total - l.Principal),
	}, nil
}

// Schedule splits every installment into principal and interest. The last
// installment absorbs rounding so that the balance ends at exactly zero.
func Schedule(l Loan) ([]Installment, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	r := l.monthlyRate()
	emi := l.payment()
	if !finite(emi) || !finite(emi*float64(l.Months)) {
		return nil, ErrOverflow
	}
	balance := l.Principal

	out := make([]Installment, 0, l.Months)
	for month := 1; month <= l.Months; month++ {
		interest := balance * r
		principal := emi - interest
		payment := emi
		if month == l.Months {
			principal = balance
			payment = principal + interest
		}
		balance -= principal

		out = append(out, Installment{
			Month:     month,
			Payment:   round2(payment),
			Principal: round2(principal),
			Interest:  round2(interest),
			Balance:   round2(math.Max(balance, 0)),
		})
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
