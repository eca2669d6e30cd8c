package models

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoiceLineItem is one billed line. Dates are ISO strings, Duration is
// minutes; Amount is the precomputed Rate * hours.
type InvoiceLineItem struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Duration    int     `json:"duration"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Invoice stores a complete snapshot of company, client and line-item data
// at invoice time, so later edits to projects or settings don't rewrite
// issued invoices.
type Invoice struct {
	ID             int64             `json:"id"`
	InvoiceNumber  string            `json:"invoiceNumber"`
	Status         InvoiceStatus     `json:"status"`
	InvoiceDate    string            `json:"invoiceDate"`
	DueDate        string            `json:"dueDate"`
	PaidAt         *string           `json:"paidAt,omitempty"`
	CompanyName    string            `json:"companyName"`
	CompanyEmail   string            `json:"companyEmail"`
	CompanyPhone   string            `json:"companyPhone"`
	CompanyAddress string            `json:"companyAddress"`
	ClientName     string            `json:"clientName"`
	ClientEmail    string            `json:"clientEmail,omitempty"`
	ProjectName    string            `json:"projectName"`
	ProjectColor   string            `json:"projectColor"`
	ProjectID      *int64            `json:"projectId,omitempty"`
	ProjectCloudID *string           `json:"projectCloudId,omitempty"`
	LineItems      []InvoiceLineItem `json:"lineItems"`
	Subtotal       float64           `json:"subtotal"`
	TaxRate        float64           `json:"taxRate"`
	TaxAmount      float64           `json:"taxAmount"`
	Total          float64           `json:"total"`
	PeriodStart    string            `json:"periodStart"`
	PeriodEnd      string            `json:"periodEnd"`
	Notes          string            `json:"notes,omitempty"`
	PaymentTerms   string            `json:"paymentTerms,omitempty"`
	CloudID        *string           `json:"cloudId,omitempty"`
	SyncStatus     SyncState         `json:"syncStatus"`
	SyncVersion    int64             `json:"syncVersion"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type CloudInvoice struct {
	CloudID        string            `json:"cloudId"`
	UserID         uuid.UUID         `json:"userId"`
	LocalID        *int64            `json:"localId,omitempty"`
	InvoiceNumber  string            `json:"invoiceNumber"`
	Status         InvoiceStatus     `json:"status"`
	InvoiceDate    string            `json:"invoiceDate"`
	DueDate        string            `json:"dueDate"`
	PaidAt         *string           `json:"paidAt,omitempty"`
	CompanyName    string            `json:"companyName"`
	CompanyEmail   string            `json:"companyEmail"`
	CompanyPhone   string            `json:"companyPhone"`
	CompanyAddress string            `json:"companyAddress"`
	ClientName     string            `json:"clientName"`
	ClientEmail    string            `json:"clientEmail,omitempty"`
	ProjectName    string            `json:"projectName"`
	ProjectColor   string            `json:"projectColor"`
	ProjectCloudID *string           `json:"projectCloudId,omitempty"`
	LineItems      []InvoiceLineItem `json:"lineItems"`
	Subtotal       float64           `json:"subtotal"`
	TaxRate        float64           `json:"taxRate"`
	TaxAmount      float64           `json:"taxAmount"`
	Total          float64           `json:"total"`
	PeriodStart    string            `json:"periodStart"`
	PeriodEnd      string            `json:"periodEnd"`
	Notes          string            `json:"notes,omitempty"`
	PaymentTerms   string            `json:"paymentTerms,omitempty"`
	SyncVersion    int64             `json:"syncVersion"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	DeletedAt      *time.Time        `json:"deletedAt,omitempty"`
}

// InvoicePayload carries the full snapshot on create. The cloud side only
// applies Status, PaidAt and Notes on update; everything else on an issued
// invoice is immutable.
type InvoicePayload struct {
	InvoiceNumber  string            `json:"invoiceNumber"`
	Status         InvoiceStatus     `json:"status"`
	InvoiceDate    string            `json:"invoiceDate"`
	DueDate        string            `json:"dueDate"`
	PaidAt         *string           `json:"paidAt,omitempty"`
	CompanyName    string            `json:"companyName"`
	CompanyEmail   string            `json:"companyEmail"`
	CompanyPhone   string            `json:"companyPhone"`
	CompanyAddress string            `json:"companyAddress"`
	ClientName     string            `json:"clientName"`
	ClientEmail    string            `json:"clientEmail,omitempty"`
	ProjectName    string            `json:"projectName"`
	ProjectColor   string            `json:"projectColor"`
	ProjectCloudID *string           `json:"projectCloudId,omitempty"`
	LineItems      []InvoiceLineItem `json:"lineItems"`
	Subtotal       float64           `json:"subtotal"`
	TaxRate        float64           `json:"taxRate"`
	TaxAmount      float64           `json:"taxAmount"`
	Total          float64           `json:"total"`
	PeriodStart    string            `json:"periodStart"`
	PeriodEnd      string            `json:"periodEnd"`
	Notes          string            `json:"notes,omitempty"`
	PaymentTerms   string            `json:"paymentTerms,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}
