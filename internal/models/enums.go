package models

import (
	"strings"

	"github.com/civicdesk/backend/internal/apperr"
)

type Category string

const (
	CategoryRoads           Category = "Roads"
	CategoryUtilities       Category = "Utilities"
	CategorySanitation      Category = "Sanitation"
	CategoryPublicSafety    Category = "Public Safety"
	CategoryWaterSupply     Category = "Water Supply"
	CategoryPublicTransport Category = "Public Transport"
	CategoryParks           Category = "Parks"
	CategoryOther           Category = "Other"
)

// Categories is the closed category set in display order. Aggregations
// break ties using this order.
var Categories = []Category{
	CategoryRoads,
	CategoryUtilities,
	CategorySanitation,
	CategoryPublicSafety,
	CategoryWaterSupply,
	CategoryPublicTransport,
	CategoryParks,
	CategoryOther,
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusOnHold     Status = "On Hold"
	StatusResolved   Status = "Resolved"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusOnHold, StatusResolved}

type ActorRole string

const (
	ActorAdmin      ActorRole = "admin"
	ActorDepartment ActorRole = "department"
	ActorCitizen    ActorRole = "citizen"
	ActorSystem     ActorRole = "system"
)

func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, true
		}
	}
	return "", false
}

func ParsePriority(s string) (Priority, bool) {
	for _, p := range Priorities {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, true
		}
	}
	return "", false
}

// ParseStatus accepts the display form ("In Progress") and the snake form ("in_progress").
func ParseStatus(s string) (Status, bool) {
	v := strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	for _, st := range Statuses {
		if strings.EqualFold(v, string(st)) {
			return st, true
		}
	}
	return "", false
}

func ParseActorRole(s string) (ActorRole, bool) {
	switch ActorRole(strings.ToLower(strings.TrimSpace(s))) {
	case ActorAdmin:
		return ActorAdmin, true
	case ActorDepartment:
		return ActorDepartment, true
	case ActorCitizen:
		return ActorCitizen, true
	case ActorSystem:
		return ActorSystem, true
	}
	return "", false
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Rank orders priorities for sorting, High first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func CategoryIndex(c Category) int {
	for i, v := range Categories {
		if v == c {
			return i
		}
	}
	return len(Categories)
}

// Validate enforces the record invariants every write must preserve.
func (c Complaint) Validate() error {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(c.Title) == "" {
		v.Add("title", "required")
	}
	if strings.TrimSpace(c.Description) == "" {
		v.Add("description", "required")
	}
	if strings.TrimSpace(c.Location) == "" {
		v.Add("location", "required")
	}
	if !c.Category.Valid() {
		v.Add("category", "invalid category")
	}
	if !c.Priority.Valid() {
		v.Add("priority", "invalid priority")
	}
	if !c.Status.Valid() {
		v.Add("status", "invalid status")
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		v.Add("latitude", "latitude and longitude must be set together")
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90) {
		v.Add("latitude", "out of range")
	}
	if c.Longitude != nil && (*c.Longitude < -180 || *c.Longitude > 180) {
		v.Add("longitude", "out of range")
	}
	if c.Upvotes < 0 {
		v.Add("upvotes", "must not be negative")
	}
	if c.Status == StatusResolved && c.ActualCompletionDate == nil {
		v.Add("actual_completion_date", "required when status is Resolved")
	}
	if c.Status != StatusResolved && c.ActualCompletionDate != nil {
		v.Add("actual_completion_date", "must be empty unless status is Resolved")
	}
	return v.OrNil()
}
