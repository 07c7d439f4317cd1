// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/placementhub/vault/internal/cryptox"
)

// User is the plaintext part of a user record. Encrypted PII lives in
// separate EncryptedFieldRow rows keyed by (user id, field name).
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string `json:"-"`
	Role         Role
	Status       Status
	Visibility   Visibility

	CGPA              *float64
	TenthPercentage   *float64
	TwelfthPercentage *float64
	Branch            string
	GraduationYear    *int

	ResumeID *string

	// Version increments on every mutation and backs optimistic concurrency.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EncryptedFieldRow is one persisted encrypted field.
type EncryptedFieldRow struct {
	UserID string
	Name   FieldName
	Field  cryptox.EncryptedField
}
