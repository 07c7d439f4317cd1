package httpapi

import (
	"time"

	"github.com/placementhub/vault/internal/server/models"
	"github.com/placementhub/vault/internal/server/services"
)

type registerRequest struct {
	Name              string            `json:"name" binding:"required"`
	Email             string            `json:"email" binding:"required"`
	Password          string            `json:"password" binding:"required"`
	Role              string            `json:"role"`
	Visibility        string            `json:"visibility"`
	CGPA              *float64          `json:"cgpa" binding:"omitempty,min=0,max=10"`
	TenthPercentage   *float64          `json:"tenthPercentage" binding:"omitempty,min=0,max=100"`
	TwelfthPercentage *float64          `json:"twelfthPercentage" binding:"omitempty,min=0,max=100"`
	Branch            string            `json:"branch"`
	GraduationYear    *int              `json:"graduationYear" binding:"omitempty,min=1950,max=2100"`
	Fields            map[string]string `json:"fields"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// updateFieldRequest uses a pointer so an explicit null clears the field.
type updateFieldRequest struct {
	Value *string `json:"value"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Visibility string    `json:"visibility"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
}

type profileResponse struct {
	userResponse
	CGPA              *float64          `json:"cgpa,omitempty"`
	TenthPercentage   *float64          `json:"tenthPercentage,omitempty"`
	TwelfthPercentage *float64          `json:"twelfthPercentage,omitempty"`
	Branch            string            `json:"branch,omitempty"`
	GraduationYear    *int              `json:"graduationYear,omitempty"`
	ResumeID          *string           `json:"resumeId,omitempty"`
	CertificateIDs    []string          `json:"certificateIds"`
	Fields            map[string]string `json:"fields"`
}

type sessionResponse struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type versionResponse struct {
	Version int64 `json:"version"`
}

// uploadResponse deliberately omits the storage path.
type uploadResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       string(u.Role),
		Status:     string(u.Status),
		Visibility: string(u.Visibility),
		Version:    u.Version,
		CreatedAt:  u.CreatedAt,
	}
}

func toProfileResponse(p *services.Profile) profileResponse {
	fields := make(map[string]string, len(p.Fields))
	for k, v := range p.Fields {
		fields[string(k)] = v
	}
	certs := p.CertificateIDs
	if certs == nil {
		certs = []string{}
	}
	return profileResponse{
		userResponse:      toUserResponse(p.User),
		CGPA:              p.User.CGPA,
		TenthPercentage:   p.User.TenthPercentage,
		TwelfthPercentage: p.User.TwelfthPercentage,
		Branch:            p.User.Branch,
		GraduationYear:    p.User.GraduationYear,
		ResumeID:          p.User.ResumeID,
		CertificateIDs:    certs,
		Fields:            fields,
	}
}

func toDocumentResponse(d *models.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Kind:       string(d.Kind),
		Filename:   d.OriginalFilename,
		MimeType:   d.MimeType,
		Size:       d.SizeBytes,
		UploadedAt: d.UploadedAt,
	}
}
