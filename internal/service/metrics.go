package service

import (
	"context"
	"sort"
	"time"

	"github.com/civicdesk/backend/internal/models"
)

type Overview struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	InProgress     int `json:"inProgress"`
	OnHold         int `json:"onHold"`
	Resolved       int `json:"resolved"`
	HighPriority   int `json:"highPriority"`
	ResolutionRate int `json:"resolutionRate"`
	TotalUpvotes   int `json:"totalUpvotes"`
}

type CategoryCount struct {
	Category       models.Category `json:"category"`
	Count          int             `json:"count"`
	PercentOfTotal int             `json:"percentOfTotal"`
}

type DepartmentStat struct {
	DepartmentID  string `json:"departmentId"`
	Name          string `json:"name"`
	AssignedCount int    `json:"assignedCount"`
	ResolvedCount int    `json:"resolvedCount"`
	SuccessRate   int    `json:"successRate"`
}

type DepartmentOverview struct {
	Department   models.Department `json:"department"`
	Overview     Overview          `json:"overview"`
	OverdueCount int               `json:"overdueCount"`
}

// RoundPercent returns round(part/whole*100) with halves rounded up, and 0
// when whole is 0. Integer arithmetic keeps it exact.
func RoundPercent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (200*part + whole) / (2 * whole)
}

func ComputeOverview(complaints []models.Complaint) Overview {
	var o Overview
	o.Total = len(complaints)
	for _, c := range complaints {
		switch c.Status {
		case models.StatusPending:
			o.Pending++
		case models.StatusInProgress:
			o.InProgress++
		case models.StatusOnHold:
			o.OnHold++
		case models.StatusResolved:
			o.Resolved++
		}
		if c.Priority == models.PriorityHigh {
			o.HighPriority++
		}
		o.TotalUpvotes += c.Upvotes
	}
	o.ResolutionRate = RoundPercent(o.Resolved, o.Total)
	return o
}

// CategoryBreakdown counts complaints per known category, omitting empty
// categories, largest first with ties in enumeration order.
func CategoryBreakdown(complaints []models.Complaint) []CategoryCount {
	counts := make(map[models.Category]int, len(models.Categories))
	for _, c := range complaints {
		if c.Category.Valid() {
			counts[c.Category]++
		}
	}
	out := []CategoryCount{}
	for _, cat := range models.Categories {
		if n := counts[cat]; n > 0 {
			out = append(out, CategoryCount{
				Category:       cat,
				Count:          n,
				PercentOfTotal: RoundPercent(n, len(complaints)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return models.CategoryIndex(out[i].Category) < models.CategoryIndex(out[j].Category)
	})
	return out
}

// DepartmentStats reports workload and success rate for every department,
// in the order the departments are given.
func DepartmentStats(complaints []models.Complaint, departments []models.Department) []DepartmentStat {
	assigned := map[string]int{}
	resolved := map[string]int{}
	for _, c := range complaints {
		if !c.IsAssigned() {
			continue
		}
		id := *c.AssignedDepartmentID
		assigned[id]++
		if c.Status == models.StatusResolved {
			resolved[id]++
		}
	}
	out := make([]DepartmentStat, 0, len(departments))
	for _, d := range departments {
		out = append(out, DepartmentStat{
			DepartmentID:  d.ID,
			Name:          d.Name,
			AssignedCount: assigned[d.ID],
			ResolvedCount: resolved[d.ID],
			SuccessRate:   RoundPercent(resolved[d.ID], assigned[d.ID]),
		})
	}
	return out
}

func isOverdue(c models.Complaint, asOf time.Time) bool {
	if c.EstimatedCompletionDate == nil || c.Status == models.StatusResolved {
		return false
	}
	return models.Date(*c.EstimatedCompletionDate).Before(models.Date(asOf))
}

// Overdue returns ids of unresolved complaints whose estimate is before the
// asOf date, in input order.
func Overdue(complaints []models.Complaint, asOf time.Time) []string {
	out := []string{}
	for _, c := range complaints {
		if isOverdue(c, asOf) {
			out = append(out, c.ID)
		}
	}
	return out
}

func Recent(complaints []models.Complaint, n int) []models.Complaint {
	items := make([]models.Complaint, len(complaints))
	copy(items, complaints)
	models.SortComplaints(items, models.SortNewest)
	if n < 0 {
		n = 0
	}
	if n < len(items) {
		items = items[:n]
	}
	return items
}

func ComputeDepartmentOverview(complaints []models.Complaint, dept models.Department, asOf time.Time) DepartmentOverview {
	mine := make([]models.Complaint, 0)
	for _, c := range complaints {
		if c.IsAssigned() && *c.AssignedDepartmentID == dept.ID {
			mine = append(mine, c)
		}
	}
	return DepartmentOverview{
		Department:   dept,
		Overview:     ComputeOverview(mine),
		OverdueCount: len(Overdue(mine, asOf)),
	}
}

// Metrics serves the read-only dashboard views from a store snapshot.
type Metrics struct {
	Repo     Repository
	Registry *Registry
	Clock    func() time.Time
}

func (m *Metrics) today() time.Time {
	if m.Clock == nil {
		return models.Date(time.Now())
	}
	return models.Date(m.Clock())
}

func (m *Metrics) Overview(ctx context.Context) (Overview, error) {
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return Overview{}, err
	}
	return ComputeOverview(all), nil
}

func (m *Metrics) Categories(ctx context.Context) ([]CategoryCount, error) {
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(all), nil
}

func (m *Metrics) Departments(ctx context.Context) ([]DepartmentStat, error) {
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	depts, err := m.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	return DepartmentStats(all, depts), nil
}

func (m *Metrics) Department(ctx context.Context, id string) (DepartmentStat, error) {
	dept, err := m.Registry.Get(ctx, id)
	if err != nil {
		return DepartmentStat{}, err
	}
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return DepartmentStat{}, err
	}
	return DepartmentStats(all, []models.Department{dept})[0], nil
}

func (m *Metrics) DepartmentOverview(ctx context.Context, id string) (DepartmentOverview, error) {
	dept, err := m.Registry.Get(ctx, id)
	if err != nil {
		return DepartmentOverview{}, err
	}
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return DepartmentOverview{}, err
	}
	return ComputeDepartmentOverview(all, dept, m.today()), nil
}

// Overdue uses today when asOf is nil.
func (m *Metrics) Overdue(ctx context.Context, asOf *time.Time) ([]string, time.Time, error) {
	day := m.today()
	if asOf != nil {
		day = models.Date(*asOf)
	}
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return nil, day, err
	}
	return Overdue(all, day), day, nil
}

func (m *Metrics) Recent(ctx context.Context, n int) ([]models.Complaint, error) {
	all, err := m.Repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Recent(all, n), nil
}
