package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trueloggs/timesync/internal/models"
)

type PostgresInvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresInvoiceRepository(pool *pgxpool.Pool) *PostgresInvoiceRepository {
	return &PostgresInvoiceRepository{pool: pool}
}

const invoiceColumns = `cloud_id, user_id, local_id, invoice_number, status, invoice_date, due_date, paid_at,
	company_name, company_email, company_phone, company_address, client_name, client_email,
	project_name, project_color, project_cloud_id, line_items, subtotal, tax_rate, tax_amount, total,
	period_start, period_end, notes, payment_terms, sync_version, created_at, updated_at, deleted_at`

func scanInvoice(row pgx.Row) (*models.CloudInvoice, error) {
	var inv models.CloudInvoice
	var clientEmail, notes, paymentTerms *string
	var lineItems string
	err := row.Scan(
		&inv.CloudID,
		&inv.UserID,
		&inv.LocalID,
		&inv.InvoiceNumber,
		&inv.Status,
		&inv.InvoiceDate,
		&inv.DueDate,
		&inv.PaidAt,
		&inv.CompanyName,
		&inv.CompanyEmail,
		&inv.CompanyPhone,
		&inv.CompanyAddress,
		&inv.ClientName,
		&clientEmail,
		&inv.ProjectName,
		&inv.ProjectColor,
		&inv.ProjectCloudID,
		&lineItems,
		&inv.Subtotal,
		&inv.TaxRate,
		&inv.TaxAmount,
		&inv.Total,
		&inv.PeriodStart,
		&inv.PeriodEnd,
		&notes,
		&paymentTerms,
		&inv.SyncVersion,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if clientEmail != nil {
		inv.ClientEmail = *clientEmail
	}
	if notes != nil {
		inv.Notes = *notes
	}
	if paymentTerms != nil {
		inv.PaymentTerms = *paymentTerms
	}
	if err := json.Unmarshal([]byte(lineItems), &inv.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	return &inv, nil
}

func (r *PostgresInvoiceRepository) GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudInvoice, error) {
	query := `SELECT ` + invoiceColumns + `
	          FROM invoices WHERE cloud_id = $1 AND user_id = $2`

	invoice, err := scanInvoice(r.pool.QueryRow(ctx, query, cloudID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

func (r *PostgresInvoiceRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudInvoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1`
	args := []any{userID}
	if since != nil {
		query += ` AND updated_at > $2`
		args = append(args, *since)
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.CloudInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

func (r *PostgresInvoiceRepository) Create(ctx context.Context, invoice *models.CloudInvoice) error {
	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}

	query := `INSERT INTO invoices (user_id, local_id, invoice_number, status, invoice_date, due_date, paid_at,
	              company_name, company_email, company_phone, company_address, client_name, client_email,
	              project_name, project_color, project_cloud_id, line_items, subtotal, tax_rate, tax_amount, total,
	              period_start, period_end, notes, payment_terms, sync_version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15, $16, $17,
	              $18, $19, $20, $21, $22, $23, NULLIF($24, ''), NULLIF($25, ''), $26, $27, $28)
	          RETURNING cloud_id`

	err = r.pool.QueryRow(ctx, query,
		invoice.UserID,
		invoice.LocalID,
		invoice.InvoiceNumber,
		invoice.Status,
		invoice.InvoiceDate,
		invoice.DueDate,
		invoice.PaidAt,
		invoice.CompanyName,
		invoice.CompanyEmail,
		invoice.CompanyPhone,
		invoice.CompanyAddress,
		invoice.ClientName,
		invoice.ClientEmail,
		invoice.ProjectName,
		invoice.ProjectColor,
		invoice.ProjectCloudID,
		string(lineItems),
		invoice.Subtotal,
		invoice.TaxRate,
		invoice.TaxAmount,
		invoice.Total,
		invoice.PeriodStart,
		invoice.PeriodEnd,
		invoice.Notes,
		invoice.PaymentTerms,
		invoice.SyncVersion,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Scan(&invoice.CloudID)

	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Update only touches the mutable fields of an issued invoice: status,
// paid_at and notes. Everything else is an immutable snapshot.
func (r *PostgresInvoiceRepository) Update(ctx context.Context, invoice *models.CloudInvoice) error {
	query := `UPDATE invoices
	          SET status = $1, paid_at = $2, notes = NULLIF($3, ''), sync_version = $4, updated_at = $5
	          WHERE cloud_id = $6 AND user_id = $7 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query,
		invoice.Status,
		invoice.PaidAt,
		invoice.Notes,
		invoice.SyncVersion,
		invoice.UpdatedAt,
		invoice.CloudID,
		invoice.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresInvoiceRepository) SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error {
	query := `UPDATE invoices
	          SET deleted_at = NOW(), sync_version = $1, updated_at = NOW()
	          WHERE cloud_id = $2 AND user_id = $3 AND deleted_at IS NULL`

	if _, err := r.pool.Exec(ctx, query, syncVersion, cloudID, userID); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return nil
}

func (r *PostgresInvoiceRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM invoices WHERE user_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return count, nil
}
