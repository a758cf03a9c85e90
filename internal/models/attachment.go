package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StepAttachment links an uploaded object to a file field of one step. The
// object lives in the object store; this record is created only after the
// upload has been confirmed, so a row here always has a backing object.
type StepAttachment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;index;not null" json:"instance_id"`
	StepNumber int       `gorm:"not null" json:"step_number"`
	FieldName  string    `gorm:"size:100;not null" json:"field_name"`

	FileName    string `gorm:"size:255;not null" json:"file_name"`
	ObjectKey   string `gorm:"size:500;not null;uniqueIndex" json:"object_key"`
	ContentType string `gorm:"size:100" json:"content_type"`
	Size        int64  `json:"size"`

	UploadedByID *uuid.UUID `gorm:"type:uuid" json:"uploaded_by_id"`
	UploadedBy   *Agent     `gorm:"foreignKey:UploadedByID" json:"uploaded_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *StepAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type StepAttachmentResponse struct {
	ID          uuid.UUID `json:"id"`
	InstanceID  uuid.UUID `json:"instance_id"`
	StepNumber  int       `json:"step_number"`
	FieldName   string    `json:"field_name"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func ToStepAttachmentResponse(a *StepAttachment) StepAttachmentResponse {
	resp := StepAttachmentResponse{
		ID:          a.ID,
		InstanceID:  a.InstanceID,
		StepNumber:  a.StepNumber,
		FieldName:   a.FieldName,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Size:        a.Size,
		CreatedAt:   a.CreatedAt,
	}
	if a.UploadedBy != nil {
		resp.UploadedBy = a.UploadedBy.DisplayName()
	}
	return resp
}
