package models

import (
	"sort"
	"strings"
)

// Mutation edits a locked complaint in place and optionally returns the
// history entry that must be committed together with the edit.
type Mutation func(c *Complaint) (*StatusHistoryEntry, error)

// Matches reports whether c passes every non-empty filter field.
func (f ComplaintFilter) Matches(c Complaint) bool {
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Priority != "" && c.Priority != f.Priority {
		return false
	}
	if f.DepartmentID != "" && (c.AssignedDepartmentID == nil || *c.AssignedDepartmentID != f.DepartmentID) {
		return false
	}
	if f.Unassigned && (c.IsAssigned() || c.Status != StatusPending) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(c.Title), q) && !strings.Contains(strings.ToLower(c.Description), q) {
			return false
		}
	}
	return true
}

// SortComplaints orders in place. Ties fall back to id for a stable result.
func SortComplaints(items []Complaint, order SortOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case SortUpvotes:
			if a.Upvotes != b.Upvotes {
				return a.Upvotes > b.Upvotes
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case SortPriority:
			// Work queue order: most urgent first, FIFO within a priority.
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() > b.Priority.Rank()
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
}

// Page applies offset and limit to an already sorted slice.
func Page(items []Complaint, offset, limit int) []Complaint {
	if offset >= len(items) {
		return []Complaint{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
