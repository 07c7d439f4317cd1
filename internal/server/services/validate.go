package services

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/fieldcodec"
	"github.com/placementhub/vault/internal/server/models"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
	maxFieldLen    = 256
	maxNameLen     = 200
)

// normalizeEmail lowercases a bare address. Display-name forms are rejected.
func normalizeEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", common.NewValidationError(common.KindInvalidInput, "email address is not valid")
	}
	return strings.ToLower(addr.Address), nil
}

func validatePassword(p string) error {
	if len(p) < minPasswordLen || len(p) > maxPasswordLen {
		return common.NewValidationError(common.KindWeakPassword,
			"password must be between %d and %d bytes", minPasswordLen, maxPasswordLen)
	}
	return nil
}

func validateName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxNameLen {
		return "", common.NewValidationError(common.KindInvalidInput, "name must be 1 to %d characters", maxNameLen)
	}
	return s, nil
}

// validateFieldValue checks a plaintext value for field. Dates must be YYYY-MM-DD.
func validateFieldValue(field models.FieldName, v string) error {
	if len(v) > maxFieldLen {
		return common.NewValidationError(common.KindInvalidField, "%s must be at most %d bytes", field, maxFieldLen)
	}
	if strings.IndexFunc(v, unicode.IsControl) >= 0 {
		return common.NewValidationError(common.KindInvalidField, "%s contains control characters", field)
	}
	if field.IsDate() {
		if _, err := fieldcodec.ParseDate(v); err != nil {
			return common.NewValidationError(common.KindInvalidField, "%s must be a date in YYYY-MM-DD form", field)
		}
	}
	return nil
}

func parseField(name string) (models.FieldName, error) {
	f, err := models.ParseFieldName(name)
	if err != nil {
		return "", common.NewValidationError(common.KindInvalidField, "unknown field %q", name)
	}
	return f, nil
}
