package task

import (
	"fmt"
	"strings"
)

// Status is the canonical lifecycle state of a task.
// Every spelling the backend has ever used is normalized into one of these
// values by ParseStatus; core logic never compares raw strings.
type Status int

const (
	StatusPending    Status = iota // Not started ("To Do")
	StatusInProgress               // Timer running
	StatusOnHold                   // Paused by the assignee
	StatusReview                   // Awaiting manager sign-off
	StatusCompleted                // Terminal
)

var statusNames = map[Status]string{
	StatusPending:    "PENDING",
	StatusInProgress: "IN_PROGRESS",
	StatusOnHold:     "ON_HOLD",
	StatusReview:     "REVIEW",
	StatusCompleted:  "COMPLETED",
}

// statusAliases maps a squashed spelling (upper case, no separators) to its
// canonical status.
var statusAliases = map[string]Status{
	"PENDING":     StatusPending,
	"TODO":        StatusPending,
	"NEW":         StatusPending,
	"OPEN":        StatusPending,
	"INPROGRESS":  StatusInProgress,
	"STARTED":     StatusInProgress,
	"RUNNING":     StatusInProgress,
	"ACTIVE":      StatusInProgress,
	"ONHOLD":      StatusOnHold,
	"HOLD":        StatusOnHold,
	"PAUSED":      StatusOnHold,
	"REVIEW":      StatusReview,
	"INREVIEW":    StatusReview,
	"UNDERREVIEW": StatusReview,
	"COMPLETED":   StatusCompleted,
	"COMPLETE":    StatusCompleted,
	"DONE":        StatusCompleted,
}

// Statuses returns every canonical status in board order.
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusOnHold, StatusReview, StatusCompleted}
}

// String returns the canonical upper-case name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no further mutation is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// ParseStatus normalizes any known spelling ("Pending", "To Do", "TO_DO",
// "in-progress", "On Hold", ...) into a canonical Status.
func ParseStatus(raw string) (Status, error) {
	key := squash(raw)
	if s, ok := statusAliases[key]; ok {
		return s, nil
	}
	return StatusPending, fmt.Errorf("unknown task status %q", raw)
}

// MarshalText encodes the canonical name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid task status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts any spelling ParseStatus understands.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// squash upper-cases and strips spaces, underscores, dashes and slashes.
func squash(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '_', '-', '/', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RequestStatus is the state of a reassignment request.
type RequestStatus string

const (
	RequestNone     RequestStatus = ""
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// ParseRequestStatus normalizes a request status. The empty string means no
// request has ever been made.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	switch squash(raw) {
	case "":
		return RequestNone, nil
	case "PENDING":
		return RequestPending, nil
	case "APPROVED", "ACCEPTED":
		return RequestApproved, nil
	case "REJECTED", "DECLINED", "DENIED":
		return RequestRejected, nil
	}
	return RequestNone, fmt.Errorf("unknown request status %q", raw)
}

// UnmarshalText normalizes the request status spelling.
func (r *RequestStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRequestStatus(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Resolved reports whether the request reached a terminal state.
func (r RequestStatus) Resolved() bool {
	return r == RequestApproved || r == RequestRejected
}

// ChecklistStatus is the state of a single checklist item.
type ChecklistStatus string

const (
	ChecklistPending   ChecklistStatus = "PENDING"
	ChecklistCompleted ChecklistStatus = "COMPLETED"
)

// UnmarshalText normalizes checklist item spellings; anything done-like is
// completed, everything else pending.
func (c *ChecklistStatus) UnmarshalText(text []byte) error {
	switch squash(string(text)) {
	case "COMPLETED", "COMPLETE", "DONE":
		*c = ChecklistCompleted
	case "", "PENDING", "TODO", "OPEN":
		*c = ChecklistPending
	default:
		return fmt.Errorf("unknown checklist status %q", string(text))
	}
	return nil
}

// Role is the acting user's dashboard role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
	RoleClient   Role = "CLIENT"
)

// ParseRole normalizes a role name.
func ParseRole(raw string) (Role, error) {
	switch squash(raw) {
	case "ADMIN", "ADMINISTRATOR":
		return RoleAdmin, nil
	case "MANAGER":
		return RoleManager, nil
	case "EMPLOYEE", "STAFF", "USER":
		return RoleEmployee, nil
	case "CLIENT", "CUSTOMER":
		return RoleClient, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// UnmarshalText normalizes the role spelling.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// CanFinalize reports whether the role may complete reviewed tasks and
// resolve reassignment requests.
func (r Role) CanFinalize() bool {
	return r == RoleAdmin || r == RoleManager
}
