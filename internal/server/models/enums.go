package models

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles. Values outside the set never
// reach authorization code: ParseRole rejects them at the boundary.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleStaff     Role = "STAFF"
	RoleStudent   Role = "STUDENT"
	RoleRecruiter Role = "RECRUITER"
	RoleGuest     Role = "GUEST"
)

var roles = []Role{RoleAdmin, RoleStaff, RoleStudent, RoleRecruiter, RoleGuest}

// ParseRole accepts any casing of a known role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	for _, known := range roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// Status is the account lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusInactive, StatusSuspended:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Visibility controls who may see a profile.
type Visibility string

const (
	VisibilityPublic     Visibility = "PUBLIC"
	VisibilityPrivate    Visibility = "PRIVATE"
	VisibilityRecruiters Visibility = "RECRUITERS"
)

func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityRecruiters:
		return v, nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}
