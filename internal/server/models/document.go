package models

import (
	"fmt"
	"strings"
	"time"
)

// DocumentKind classifies uploaded files.
type DocumentKind string

const (
	KindResume      DocumentKind = "RESUME"
	KindCertificate DocumentKind = "CERTIFICATE"
	KindOther       DocumentKind = "OTHER"
)

// ParseDocumentKind defaults an empty string to KindOther.
func ParseDocumentKind(s string) (DocumentKind, error) {
	if strings.TrimSpace(s) == "" {
		return KindOther, nil
	}
	k := DocumentKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case KindResume, KindCertificate, KindOther:
		return k, nil
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}

// Document describes an uploaded file. The bytes live in a blob store under
// StoragePath; OriginalFilename is display metadata only.
type Document struct {
	ID               string
	OwnerID          string
	Kind             DocumentKind
	OriginalFilename string
	StoredFilename   string
	StoragePath      string
	MimeType         string
	SizeBytes        int64
	UploadedAt       time.Time
}
