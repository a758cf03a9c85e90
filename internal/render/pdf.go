package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReportPayload is the flattened, render-ready view of a workflow instance.
// The report service assembles it; the renderer only draws.
type ReportPayload struct {
	WorkflowNumber     string
	TicketNumber       string
	DeviceSerialNumber string
	CustomerName       string
	CompanyName        string
	Status             string
	ReportType         string
	GeneratedAt        time.Time
	GeneratedBy        string

	Steps []StepSection
}

// StepSection is one step of the payload, with its field values resolved to
// display labels.
type StepSection struct {
	StepNumber  int
	Name        string
	Status      string
	AgentName   string
	CompletedAt *time.Time
	Fields      []FieldLine
	Attachments []AttachmentLine
}

type FieldLine struct {
	Label string
	Value string
}

type AttachmentLine struct {
	FileName    string
	ContentType string
	Size        int64
}

// Renderer turns a report payload into a document. The interface exists so
// tests can substitute a fake and so the output format can change without
// touching the report service.
type Renderer interface {
	Render(payload *ReportPayload) ([]byte, error)
}

type pdfRenderer struct{}

func NewPDFRenderer() Renderer {
	return &pdfRenderer{}
}

func (r *pdfRenderer) Render(payload *ReportPayload) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 20)
	title := "SERVICE REPORT"
	if payload.ReportType == "draft" {
		title = "SERVICE REPORT (DRAFT)"
	}
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 6, "Generated: "+payload.GeneratedAt.Format("2006-01-02 15:04:05"))
	if payload.GeneratedBy != "" {
		pdf.Ln(5)
		pdf.Cell(0, 6, "By: "+payload.GeneratedBy)
	}
	pdf.Ln(10)
	pdf.SetTextColor(0, 0, 0)

	// Header section
	pdf.SetFont("Arial", "B", 14)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 8, "Service Details", "", 1, "L", true, 0, "")
	pdf.Ln(2)

	r.labelValue(pdf, "Workflow Number:", payload.WorkflowNumber)
	r.labelValue(pdf, "Ticket Number:", payload.TicketNumber)
	r.labelValue(pdf, "Device Serial:", payload.DeviceSerialNumber)
	if payload.CustomerName != "" {
		r.labelValue(pdf, "Customer:", payload.CustomerName)
	}
	if payload.CompanyName != "" {
		r.labelValue(pdf, "Company:", payload.CompanyName)
	}
	r.labelValue(pdf, "Status:", payload.Status)
	pdf.Ln(6)

	// Step sections
	for _, step := range payload.Steps {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 8, fmt.Sprintf("Step %d: %s", step.StepNumber, step.Name), "", 1, "L", true, 0, "")
		pdf.Ln(2)

		pdf.SetFont("Arial", "I", 9)
		pdf.SetTextColor(100, 100, 100)
		meta := "Status: " + step.Status
		if step.AgentName != "" {
			meta += " - " + step.AgentName
		}
		if step.CompletedAt != nil {
			meta += " - " + step.CompletedAt.Format("2006-01-02 15:04:05")
		}
		pdf.Cell(0, 5, meta)
		pdf.Ln(7)
		pdf.SetTextColor(0, 0, 0)

		for _, field := range step.Fields {
			pdf.SetFont("Arial", "", 10)
			pdf.Cell(55, 6, field.Label+":")
			pdf.SetFont("Arial", "B", 10)
			pdf.MultiCell(0, 6, field.Value, "", "L", false)
		}

		if len(step.Attachments) > 0 {
			pdf.Ln(2)
			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(0, 6, fmt.Sprintf("Attachments (%d)", len(step.Attachments)))
			pdf.Ln(6)
			pdf.SetFont("Arial", "", 9)
			for i, a := range step.Attachments {
				pdf.Cell(0, 5, fmt.Sprintf("%d. %s (%s, %d bytes)", i+1, a.FileName, a.ContentType, a.Size))
				pdf.Ln(5)
			}
		}

		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *pdfRenderer) labelValue(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(45, 6, label)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, value)
	pdf.Ln(6)
}
