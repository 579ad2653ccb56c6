// Package model defines the grade snapshot domain: sections holding
// grading periods, periods holding categories, categories holding
// assignments. Every node carries the upstream identifier it was
// fetched with; all change detection keys on those IDs.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exception marks an assignment graded without points.
type Exception int

const (
	ExceptionNone Exception = iota
	ExceptionExcused
	ExceptionIncomplete
	ExceptionMissing
)

// ParseException maps the upstream exception code onto the enum.
func ParseException(code int) (Exception, error) {
	if code < int(ExceptionNone) || code > int(ExceptionMissing) {
		return ExceptionNone, fmt.Errorf("unknown exception code %d", code)
	}
	return Exception(code), nil
}

func (e Exception) String() string {
	switch e {
	case ExceptionExcused:
		return "excused"
	case ExceptionIncomplete:
		return "incomplete"
	case ExceptionMissing:
		return "missing"
	}
	return "none"
}

// Assignment is a single gradable item. Points are nil when the
// upstream has not supplied them.
type Assignment struct {
	AssignmentID string
	Title        string
	EarnedPoints *decimal.Decimal
	MaxPoints    *decimal.Decimal
	Exception    Exception
	Comment      string
	DueDate      *time.Time
}

// Graded reports whether the assignment carries a grade: either an
// exception, or both point values with a positive maximum.
func (a Assignment) Graded() bool {
	if a.Exception != ExceptionNone {
		return true
	}
	return a.EarnedPoints != nil && a.MaxPoints != nil && a.MaxPoints.IsPositive()
}

// GradeEquals reports whether two assignments carry the same grade.
// Point comparison is numeric, so "8.50" and "8.5" are equal.
func (a Assignment) GradeEquals(b Assignment) bool {
	return a.Exception == b.Exception &&
		decimalEqual(a.EarnedPoints, b.EarnedPoints) &&
		decimalEqual(a.MaxPoints, b.MaxPoints)
}

func decimalEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// NormalizeComment canonicalizes a teacher comment for comparison:
// lowercased, trimmed, with the upstream "No comment" sentinel mapped
// to empty.
func NormalizeComment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "no comment" {
		return ""
	}
	return s
}

// CommentEquivalent reports whether two comments say the same thing
// after normalization.
func (a Assignment) CommentEquivalent(b Assignment) bool {
	return NormalizeComment(a.Comment) == NormalizeComment(b.Comment)
}

// Category groups assignments under a grading weight.
type Category struct {
	CategoryID  string
	Name        string
	Weight      *decimal.Decimal
	Assignments []Assignment
}

// Period is one grading period within a section.
type Period struct {
	PeriodID   string
	Name       string
	Categories []Category
}

// Section is one enrolled course section.
type Section struct {
	SectionID    string
	CourseTitle  string
	SectionTitle string
	Periods      []Period
}

// FullName renders "Course: Section", omitting an empty section title.
func (s Section) FullName() string {
	if s.SectionTitle == "" {
		return s.CourseTitle
	}
	return s.CourseTitle + ": " + s.SectionTitle
}

// Snapshot is the complete grade state at one instant.
type Snapshot struct {
	Timestamp time.Time
	Sections  []Section
}

// AssignmentRef locates an assignment within its snapshot hierarchy.
type AssignmentRef struct {
	Section    *Section
	Period     *Period
	Category   *Category
	Assignment *Assignment
}

// Walk visits every assignment in deterministic order: each level is
// traversed sorted by its identifier. Returning an error from fn stops
// the walk.
func (s *Snapshot) Walk(fn func(ref AssignmentRef) error) error {
	for _, si := range sortedIndex(len(s.Sections), func(i int) string { return s.Sections[i].SectionID }) {
		section := &s.Sections[si]
		for _, pi := range sortedIndex(len(section.Periods), func(i int) string { return section.Periods[i].PeriodID }) {
			period := &section.Periods[pi]
			for _, ci := range sortedIndex(len(period.Categories), func(i int) string { return period.Categories[i].CategoryID }) {
				category := &period.Categories[ci]
				for _, ai := range sortedIndex(len(category.Assignments), func(i int) string { return category.Assignments[i].AssignmentID }) {
					ref := AssignmentRef{
						Section:    section,
						Period:     period,
						Category:   category,
						Assignment: &category.Assignments[ai],
					}
					if err := fn(ref); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func sortedIndex(n int, key func(i int) string) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return key(idx[a]) < key(idx[b]) })
	return idx
}

// Assignments returns every assignment reference in walk order.
func (s *Snapshot) Assignments() []AssignmentRef {
	var refs []AssignmentRef
	_ = s.Walk(func(ref AssignmentRef) error {
		refs = append(refs, ref)
		return nil
	})
	return refs
}

// CountAssignments returns the total number of assignments.
func (s *Snapshot) CountAssignments() int {
	n := 0
	_ = s.Walk(func(AssignmentRef) error {
		n++
		return nil
	})
	return n
}
