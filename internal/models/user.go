package models

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User mirrors the identity provider's view of an account. Users are never
// persisted here; the directory (Casdoor) is the source of truth, and
// BatchIDs carries the enrollment groups used for audience checks.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`

	AvatarURL *string `json:"avatar_url"`

	// Enrollment groups, from the directory's user properties
	BatchIDs []string `json:"batch_ids"`

	EmailVerified bool `json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InBatch reports whether the user belongs to any of the given batches.
func (u *User) InBatch(batchIDs []string) bool {
	for _, mine := range u.BatchIDs {
		for _, want := range batchIDs {
			if mine == want {
				return true
			}
		}
	}
	return false
}

// CanAuthor reports whether the user may create and manage tests.
func (u *User) CanAuthor() bool {
	return u.Role == RoleTeacher || u.Role == RoleAdmin
}
