package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Absent is the display placeholder for a value that does not exist.
const Absent = "—"

// FormatDecimal renders a decimal with trailing fractional zeros
// stripped, so 8.50 prints as "8.5" and 10.00 as "10".
func FormatDecimal(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// GradeString renders the assignment's grade for display: the
// exception word when one is set, otherwise "earned / max" with Absent
// standing in for missing sides.
func (a Assignment) GradeString() string {
	if a.Exception != ExceptionNone {
		return a.Exception.String()
	}
	if a.EarnedPoints == nil && a.MaxPoints == nil {
		return Absent
	}
	earned, max := Absent, Absent
	if a.EarnedPoints != nil {
		earned = FormatDecimal(*a.EarnedPoints)
	}
	if a.MaxPoints != nil {
		max = FormatDecimal(*a.MaxPoints)
	}
	return earned + " / " + max
}

// FormatInstant renders a timestamp as "YYYY-MM-DD HH:MM" in UTC, or
// Absent for nil.
func FormatInstant(t *time.Time) string {
	if t == nil {
		return Absent
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// Percentage returns earned/max as a percentage, or nil when the
// assignment has no numeric grade.
func (a Assignment) Percentage() *decimal.Decimal {
	if a.Exception != ExceptionNone || a.EarnedPoints == nil || a.MaxPoints == nil || !a.MaxPoints.IsPositive() {
		return nil
	}
	pct := a.EarnedPoints.Div(*a.MaxPoints).Mul(decimal.NewFromInt(100))
	return &pct
}

var letterGradeScale = []struct {
	min    int64
	letter string
}{
	{97, "A+"},
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{63, "D"},
	{60, "D-"},
}

// LetterGrade maps a percentage onto the standard letter scale.
func LetterGrade(pct *decimal.Decimal) string {
	if pct == nil {
		return ""
	}
	for _, g := range letterGradeScale {
		if pct.GreaterThanOrEqual(decimal.NewFromInt(g.min)) {
			return g.letter
		}
	}
	return "F"
}
