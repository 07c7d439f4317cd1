package models

import "fmt"

// FieldName identifies one encrypted PII field of a user.
type FieldName string

const (
	FieldContactNumber     FieldName = "contactNumber"
	FieldSapID             FieldName = "sapId"
	FieldRollNo            FieldName = "rollNo"
	FieldGender            FieldName = "gender"
	FieldDOB               FieldName = "dob"
	FieldAddressStreet     FieldName = "address.street"
	FieldAddressCity       FieldName = "address.city"
	FieldAddressState      FieldName = "address.state"
	FieldAddressPostalCode FieldName = "address.postalCode"
	FieldAddressCountry    FieldName = "address.country"
)

// EncryptedFields lists every encrypted field in a stable order.
var EncryptedFields = []FieldName{
	FieldContactNumber,
	FieldSapID,
	FieldRollNo,
	FieldGender,
	FieldDOB,
	FieldAddressStreet,
	FieldAddressCity,
	FieldAddressState,
	FieldAddressPostalCode,
	FieldAddressCountry,
}

// ParseFieldName rejects names outside EncryptedFields.
func ParseFieldName(s string) (FieldName, error) {
	for _, f := range EncryptedFields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// IsDate reports whether the field holds a calendar date rather than text.
func (f FieldName) IsDate() bool {
	return f == FieldDOB
}
