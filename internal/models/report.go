package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportType distinguishes a preliminary draft from the final service report
// produced at closure.
type ReportType string

const (
	ReportDraft ReportType = "draft"
	ReportFinal ReportType = "final"
)

// ServiceReport records one generated service report PDF. The rendered
// document lives in the object store under ObjectKey; the record is created
// only after both the rendering and the upload have been confirmed.
type ServiceReport struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;index;not null" json:"instance_id"`

	FileName   string     `gorm:"size:255;not null" json:"file_name"`
	ObjectKey  string     `gorm:"size:500;not null;uniqueIndex" json:"object_key"`
	ReportType ReportType `gorm:"size:10;not null;default:'draft'" json:"report_type"`
	Size       int64      `json:"size"`

	GeneratedByID uuid.UUID `gorm:"type:uuid;index" json:"generated_by_id"`
	GeneratedBy   *Agent    `gorm:"foreignKey:GeneratedByID" json:"generated_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *ServiceReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type GenerateReportRequest struct {
	ReportType string `json:"report_type" validate:"omitempty,oneof=draft final"`
}

type ServiceReportResponse struct {
	ID          uuid.UUID  `json:"id"`
	InstanceID  uuid.UUID  `json:"instance_id"`
	FileName    string     `json:"file_name"`
	ReportType  ReportType `json:"report_type"`
	Size        int64      `json:"size"`
	URL         string     `json:"url,omitempty"`
	GeneratedBy string     `json:"generated_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func ToServiceReportResponse(r *ServiceReport) ServiceReportResponse {
	resp := ServiceReportResponse{
		ID:         r.ID,
		InstanceID: r.InstanceID,
		FileName:   r.FileName,
		ReportType: r.ReportType,
		Size:       r.Size,
		CreatedAt:  r.CreatedAt,
	}
	if r.GeneratedBy != nil {
		resp.GeneratedBy = r.GeneratedBy.DisplayName()
	}
	return resp
}
