package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gradewatch/gradewatch/internal/model"
)

// Wire types. The API is loose with numeric fields (sometimes numbers,
// sometimes strings), so everything scalar comes in as json.Number or
// string and gets parsed explicitly.

type userPayload struct {
	UID any `json:"uid"`
}

type sectionsPayload struct {
	Section []sectionInfo `json:"section"`
}

type sectionInfo struct {
	ID           string `json:"id"`
	CourseTitle  string `json:"course_title"`
	SectionTitle string `json:"section_title"`
}

type gradesPayload struct {
	Section []sectionGrades `json:"section"`
}

type sectionGrades struct {
	SectionID string         `json:"section_id"`
	Period    []periodGrades `json:"period"`
}

type periodGrades struct {
	PeriodTitle string        `json:"period_title"`
	Assignment  []gradeRecord `json:"assignment"`
}

type gradeRecord struct {
	AssignmentID any    `json:"assignment_id"`
	CategoryID   any    `json:"category_id"`
	Grade        any    `json:"grade"`
	MaxPoints    any    `json:"max_points"`
	Exception    int    `json:"exception"`
	Comment      string `json:"comment"`
}

type assignmentDetail struct {
	Title string `json:"title"`
	Due   string `json:"due"`
}

type categoriesPayload struct {
	GradingCategory []categoryInfo `json:"grading_category"`
}

type categoryInfo struct {
	ID     any    `json:"id"`
	Title  string `json:"title"`
	Weight any    `json:"weight"`
}

// Fetcher retrieves the complete grade snapshot for the authenticated
// user.
type Fetcher struct {
	client *Client
	log    *slog.Logger

	userID string

	// per-fetch caches, reset on each Fetch
	detailCache   map[string]*assignmentDetail
	categoryCache map[string]map[string]categoryInfo
}

// NewFetcher creates a Fetcher over an authenticated client.
func NewFetcher(client *Client, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{client: client, log: log}
}

// Fetch retrieves all sections and grades and assembles the snapshot.
// A section whose payload cannot be interpreted is logged and skipped;
// one broken course must not blank out the rest.
func (f *Fetcher) Fetch(ctx context.Context) (*model.Snapshot, error) {
	f.detailCache = make(map[string]*assignmentDetail)
	f.categoryCache = make(map[string]map[string]categoryInfo)

	userID, err := f.getUserID(ctx)
	if err != nil {
		return nil, err
	}

	var sections sectionsPayload
	if err := f.client.get(ctx, "users/"+userID+"/sections", &sections); err != nil {
		return nil, fmt.Errorf("failed to fetch sections: %w", err)
	}
	sectionNames := make(map[string]sectionInfo, len(sections.Section))
	for _, s := range sections.Section {
		sectionNames[s.ID] = s
	}

	var grades gradesPayload
	if err := f.client.get(ctx, "users/"+userID+"/grades", &grades); err != nil {
		return nil, fmt.Errorf("failed to fetch grades: %w", err)
	}

	snap := &model.Snapshot{Timestamp: time.Now()}
	for _, sg := range grades.Section {
		section, err := f.buildSection(ctx, sg, sectionNames)
		if err != nil {
			f.log.Warn("skipping section", "section_id", sg.SectionID, "error", err)
			continue
		}
		snap.Sections = append(snap.Sections, *section)
	}
	return snap, nil
}

func (f *Fetcher) getUserID(ctx context.Context) (string, error) {
	if f.userID != "" {
		return f.userID, nil
	}
	var me userPayload
	if err := f.client.get(ctx, "users/me", &me); err != nil {
		return "", fmt.Errorf("failed to fetch user: %w", err)
	}
	uid := asString(me.UID)
	if uid == "" {
		return "", fmt.Errorf("user payload missing uid")
	}
	f.userID = uid
	f.log.Info("resolved user", "uid", uid)
	return uid, nil
}

func (f *Fetcher) buildSection(ctx context.Context, sg sectionGrades, names map[string]sectionInfo) (*model.Section, error) {
	if sg.SectionID == "" {
		return nil, fmt.Errorf("section payload missing section_id")
	}

	section := &model.Section{SectionID: sg.SectionID}
	if info, ok := f.matchSection(sg.SectionID, names); ok {
		section.CourseTitle = info.CourseTitle
		section.SectionTitle = info.SectionTitle
	} else {
		f.log.Warn("section not in enrollment list, using generic name", "section_id", sg.SectionID)
		section.CourseTitle = "Unknown Course"
		section.SectionTitle = "Section " + sg.SectionID
	}

	for _, pg := range sg.Period {
		name := pg.PeriodTitle
		if name == "" {
			name = "Unknown Period"
		}
		period := model.Period{
			// Period titles repeat across sections, so the stored ID
			// is scoped to the section.
			PeriodID: sg.SectionID + ":" + name,
			Name:     name,
		}

		byCategory := make(map[string][]model.Assignment)
		for _, rec := range pg.Assignment {
			a, categoryID, err := f.buildAssignment(ctx, sg.SectionID, rec)
			if err != nil {
				f.log.Warn("skipping assignment", "section_id", sg.SectionID, "error", err)
				continue
			}
			byCategory[categoryID] = append(byCategory[categoryID], *a)
		}

		for categoryID, assignments := range byCategory {
			name, weight := f.categoryInfo(ctx, sg.SectionID, categoryID)
			period.Categories = append(period.Categories, model.Category{
				CategoryID:  categoryID,
				Name:        name,
				Weight:      weight,
				Assignments: assignments,
			})
		}
		section.Periods = append(section.Periods, period)
	}
	return section, nil
}

// matchSection resolves the grades payload's section ID against the
// enrollment list. Grade section IDs occasionally sit a step or two
// off the enrollment IDs, so nearby IDs are tried before giving up.
func (f *Fetcher) matchSection(sectionID string, names map[string]sectionInfo) (sectionInfo, bool) {
	if info, ok := names[sectionID]; ok {
		return info, true
	}
	n, err := strconv.ParseInt(sectionID, 10, 64)
	if err != nil {
		return sectionInfo{}, false
	}
	for _, offset := range []int64{-1, 1, -2, 2} {
		if info, ok := names[strconv.FormatInt(n+offset, 10)]; ok {
			f.log.Info("matched section by nearby id", "section_id", sectionID, "offset", offset)
			return info, true
		}
	}
	return sectionInfo{}, false
}

func (f *Fetcher) buildAssignment(ctx context.Context, sectionID string, rec gradeRecord) (*model.Assignment, string, error) {
	assignmentID := asString(rec.AssignmentID)
	if assignmentID == "" {
		return nil, "", fmt.Errorf("grade record missing assignment_id")
	}
	categoryID := asString(rec.CategoryID)
	if categoryID == "" {
		categoryID = "0"
	}

	exception, err := model.ParseException(rec.Exception)
	if err != nil {
		return nil, "", fmt.Errorf("assignment %s: %w", assignmentID, err)
	}

	a := &model.Assignment{
		AssignmentID: assignmentID,
		Exception:    exception,
		Comment:      rec.Comment,
	}

	// Points are only meaningful without an exception; an excused or
	// missing assignment has no numeric grade regardless of what the
	// payload carries.
	if exception == model.ExceptionNone {
		a.EarnedPoints = parseDecimalField(rec.Grade, f.log, "grade")
		a.MaxPoints = parseDecimalField(rec.MaxPoints, f.log, "max_points")
	}

	detail := f.assignmentDetail(ctx, sectionID, assignmentID)
	if detail != nil && detail.Title != "" {
		a.Title = detail.Title
	} else {
		a.Title = "Assignment " + assignmentID
	}
	if detail != nil && detail.Due != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", detail.Due); err == nil {
			a.DueDate = &t
		} else {
			f.log.Warn("could not parse due date", "assignment_id", assignmentID, "due", detail.Due)
		}
	}
	return a, categoryID, nil
}

// assignmentDetail fetches per-assignment metadata, cached per fetch.
// Detail lookups are best effort; a missing title never blocks the
// grade itself.
func (f *Fetcher) assignmentDetail(ctx context.Context, sectionID, assignmentID string) *assignmentDetail {
	key := sectionID + ":" + assignmentID
	if d, ok := f.detailCache[key]; ok {
		return d
	}
	var d assignmentDetail
	if err := f.client.get(ctx, "sections/"+sectionID+"/assignments/"+assignmentID, &d); err != nil {
		f.log.Warn("could not fetch assignment detail", "assignment_id", assignmentID, "error", err)
		f.detailCache[key] = nil
		return nil
	}
	f.detailCache[key] = &d
	return &d
}

func (f *Fetcher) categoryInfo(ctx context.Context, sectionID, categoryID string) (string, *decimal.Decimal) {
	cats, ok := f.categoryCache[sectionID]
	if !ok {
		var payload categoriesPayload
		if err := f.client.get(ctx, "sections/"+sectionID+"/grading_categories", &payload); err != nil {
			f.log.Warn("could not fetch grading categories", "section_id", sectionID, "error", err)
		}
		cats = make(map[string]categoryInfo, len(payload.GradingCategory))
		for _, c := range payload.GradingCategory {
			cats[asString(c.ID)] = c
		}
		f.categoryCache[sectionID] = cats
	}

	c, ok := cats[categoryID]
	if !ok {
		return "Category " + categoryID, nil
	}
	name := c.Title
	if name == "" {
		name = "Category " + categoryID
	}
	return name, parseDecimalField(c.Weight, f.log, "weight")
}

// asString renders a loosely typed scalar (string or number) as its
// canonical string form.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func parseDecimalField(v any, log *slog.Logger, field string) *decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		d, err := decimal.NewFromString(t)
		if err != nil {
			log.Warn("could not parse numeric field", "field", field, "value", t)
			return nil
		}
		return &d
	case float64:
		d := decimal.NewFromFloat(t)
		return &d
	}
	log.Warn("unexpected type for numeric field", "field", field)
	return nil
}
