package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trueloggs/timesync/internal/models"
)

const invoiceColumns = `id, invoice_number, status, invoice_date, due_date, paid_at,
	company_name, company_email, company_phone, company_address,
	client_name, client_email, project_name, project_color, project_id,
	line_items, subtotal, tax_rate, tax_amount, total, period_start, period_end,
	notes, payment_terms, cloud_id, sync_status, sync_version, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*models.Invoice, error) {
	var inv models.Invoice
	var paidAt, cloudID sql.NullString
	var projectID sql.NullInt64
	var lineItems, createdAt, updatedAt string
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.Status, &inv.InvoiceDate, &inv.DueDate, &paidAt,
		&inv.CompanyName, &inv.CompanyEmail, &inv.CompanyPhone, &inv.CompanyAddress,
		&inv.ClientName, &inv.ClientEmail, &inv.ProjectName, &inv.ProjectColor, &projectID,
		&lineItems, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.Notes, &inv.PaymentTerms, &cloudID, &inv.SyncStatus, &inv.SyncVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.String
	}
	if projectID.Valid {
		inv.ProjectID = &projectID.Int64
	}
	if cloudID.Valid {
		inv.CloudID = &cloudID.String
	}
	if err := json.Unmarshal([]byte(lineItems), &inv.LineItems); err != nil {
		return nil, fmt.Errorf("decode line items of invoice %d: %w", inv.ID, err)
	}
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return &inv, nil
}

func (o ops) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	return scanInvoice(o.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
}

func (o ops) GetInvoiceByCloudID(ctx context.Context, cloudID string) (*models.Invoice, error) {
	return scanInvoice(o.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE cloud_id = ?`, cloudID))
}

func (o ops) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (o ops) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO invoices (invoice_number, status, invoice_date, due_date, paid_at,
			company_name, company_email, company_phone, company_address,
			client_name, client_email, project_name, project_color, project_id,
			line_items, subtotal, tax_rate, tax_amount, total, period_start, period_end,
			notes, payment_terms, cloud_id, sync_status, sync_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.InvoiceNumber, inv.Status, inv.InvoiceDate, inv.DueDate, inv.PaidAt,
		inv.CompanyName, inv.CompanyEmail, inv.CompanyPhone, inv.CompanyAddress,
		inv.ClientName, inv.ClientEmail, inv.ProjectName, inv.ProjectColor, inv.ProjectID,
		string(lineItems), inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.PeriodStart, inv.PeriodEnd,
		inv.Notes, inv.PaymentTerms, inv.CloudID, inv.SyncStatus, inv.SyncVersion,
		fmtTime(inv.CreatedAt), fmtTime(inv.UpdatedAt))
	if err != nil {
		return err
	}
	inv.ID, err = res.LastInsertId()
	return err
}

// UpdateInvoice rewrites the mutable fields; issued invoice snapshots
// themselves never change, but status, payment and notes do.
func (o ops) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	res, err := o.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, paid_at = ?, notes = ?,
		 cloud_id = ?, sync_status = ?, sync_version = ?, updated_at = ? WHERE id = ?`,
		inv.Status, inv.PaidAt, inv.Notes,
		inv.CloudID, inv.SyncStatus, inv.SyncVersion, fmtTime(inv.UpdatedAt), inv.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (o ops) DeleteInvoice(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	return err
}
