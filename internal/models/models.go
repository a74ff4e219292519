package models

import "time"

type Complaint struct {
	ID                      string     `json:"id"`
	Title                   string     `json:"title"`
	Description             string     `json:"description"`
	Category                Category   `json:"category"`
	Priority                Priority   `json:"priority"`
	Status                  Status     `json:"status"`
	Location                string     `json:"location"`
	Latitude                *float64   `json:"latitude"`
	Longitude               *float64   `json:"longitude"`
	Upvotes                 int        `json:"upvotes"`
	AssignedDepartmentID    *string    `json:"assigned_department_id"`
	AssignedToUserID        *string    `json:"assigned_to_user_id"`
	AdminNotes              *string    `json:"admin_notes"`
	ResolutionNotes         *string    `json:"resolution_notes"`
	EstimatedCompletionDate *time.Time `json:"estimated_completion_date"`
	ActualCompletionDate    *time.Time `json:"actual_completion_date"`
	DateSubmitted           time.Time  `json:"date_submitted"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

type Department struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ContactEmail string    `json:"contact_email"`
	ContactPhone *string   `json:"contact_phone"`
	CreatedAt    time.Time `json:"created_at"`
}

type StatusHistoryEntry struct {
	ID          string    `json:"id"`
	ComplaintID string    `json:"complaint_id"`
	NewStatus   Status    `json:"new_status"`
	Notes       *string   `json:"notes"`
	ActorRole   ActorRole `json:"actor_role"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewComplaint is the citizen submission payload after transport decoding.
type NewComplaint struct {
	Title       string
	Description string
	Category    string
	Priority    string
	Location    string
	Latitude    *float64
	Longitude   *float64
}

// ComplaintPatch carries the fields an update may touch. Nil means unchanged.
// ExpectedUpdatedAt, when set, turns the update into a compare-and-swap on updated_at.
type ComplaintPatch struct {
	Title                     *string
	Description               *string
	Category                  *Category
	Priority                  *Priority
	Location                  *string
	AdminNotes                *string
	ResolutionNotes           *string
	EstimatedCompletionDate   *time.Time
	ClearEstimatedDate        bool
	ActualCompletionDate      *time.Time
	ClearActualCompletionDate bool
	ExpectedUpdatedAt         *time.Time
}

type ComplaintFilter struct {
	Category     Category
	Status       Status
	Priority     Priority
	DepartmentID string
	Query        string
	Unassigned   bool
	Sort         SortOrder
	Limit        int
	Offset       int
}

type SortOrder string

const (
	SortNewest   SortOrder = "newest"
	SortOldest   SortOrder = "oldest"
	SortUpvotes  SortOrder = "upvotes"
	SortPriority SortOrder = "priority"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps paging and sort values to the supported range.
func (f ComplaintFilter) Normalize() ComplaintFilter {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.Sort {
	case SortNewest, SortOldest, SortUpvotes, SortPriority:
	default:
		f.Sort = SortNewest
	}
	return f
}

func (c Complaint) IsAssigned() bool {
	return c.AssignedDepartmentID != nil && *c.AssignedDepartmentID != ""
}

func (c Complaint) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// Clone returns a deep copy so callers can mutate pointer fields safely.
func (c Complaint) Clone() Complaint {
	out := c
	out.Latitude = cloneFloat(c.Latitude)
	out.Longitude = cloneFloat(c.Longitude)
	out.AssignedDepartmentID = cloneString(c.AssignedDepartmentID)
	out.AssignedToUserID = cloneString(c.AssignedToUserID)
	out.AdminNotes = cloneString(c.AdminNotes)
	out.ResolutionNotes = cloneString(c.ResolutionNotes)
	out.EstimatedCompletionDate = cloneTime(c.EstimatedCompletionDate)
	out.ActualCompletionDate = cloneTime(c.ActualCompletionDate)
	return out
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func StringPtr(s string) *string {
	return &s
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
