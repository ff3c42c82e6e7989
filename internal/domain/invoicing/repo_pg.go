package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/billing/internal/platform/db"
)

// =========== Invoice Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const invoiceCols = `id, invoice_number, patient_id, clinician_id, kind,
	subtotal, discount_amount, discount_percent, tax_rate_percent, tax_amount,
	total_amount, paid_amount, due_amount, payment_status, notes,
	created_at, updated_at`

func (r *invoiceRepoPG) scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.ClinicianID, &inv.Kind,
		&inv.Subtotal, &inv.DiscountAmount, &inv.DiscountPercent, &inv.TaxRatePercent, &inv.TaxAmount,
		&inv.TotalAmount, &inv.PaidAmount, &inv.DueAmount, &inv.PaymentStatus, &inv.Notes,
		&inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice (id, patient_id, clinician_id, kind,
			subtotal, discount_amount, discount_percent, tax_rate_percent, tax_amount,
			total_amount, paid_amount, due_amount, payment_status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING invoice_number, created_at, updated_at`,
		inv.ID, inv.PatientID, inv.ClinicianID, inv.Kind,
		inv.Subtotal, inv.DiscountAmount, inv.DiscountPercent, inv.TaxRatePercent, inv.TaxAmount,
		inv.TotalAmount, inv.PaidAmount, inv.DueAmount, inv.PaymentStatus, inv.Notes,
	).Scan(&inv.InvoiceNumber, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	if err := r.insertItems(ctx, inv.ID, inv.Items); err != nil {
		return err
	}
	for i := range inv.Payments {
		inv.Payments[i].InvoiceID = inv.ID
		if err := r.insertPayment(ctx, &inv.Payments[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *invoiceRepoPG) insertItems(ctx context.Context, invoiceID uuid.UUID, items []LineItem) error {
	for i, li := range items {
		if li.ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO invoice_item (id, invoice_id, position, kind, description,
				quantity, unit_price, catalog_ref, clinician_ref, price_is_defaulted)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			items[i].ID, invoiceID, i, li.Kind, li.Description,
			li.Quantity, li.UnitPrice, li.CatalogRef, li.ClinicianRef, li.PriceIsDefaulted)
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", i, err)
		}
	}
	return nil
}

func (r *invoiceRepoPG) insertPayment(ctx context.Context, p *Payment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_payment (id, invoice_id, amount, method, reference, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *invoiceRepoPG) loadChildren(ctx context.Context, inv *Invoice) error {
	items, err := r.listItems(ctx, inv.ID)
	if err != nil {
		return err
	}
	inv.Items = items
	payments, err := r.ListPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	inv.Payments = make([]Payment, 0, len(payments))
	for _, p := range payments {
		inv.Payments = append(inv.Payments, *p)
	}
	return nil
}

func (r *invoiceRepoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Invoice, error) {
	inv, err := r.scanInvoice(r.conn(ctx).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1`, id)
}

func (r *invoiceRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1 FOR UPDATE`, id)
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET clinician_id=$2, kind=$3,
			subtotal=$4, discount_amount=$5, discount_percent=$6, tax_rate_percent=$7, tax_amount=$8,
			total_amount=$9, due_amount=$10, payment_status=$11, notes=$12, updated_at=NOW()
		WHERE id = $1`,
		inv.ID, inv.ClinicianID, inv.Kind,
		inv.Subtotal, inv.DiscountAmount, inv.DiscountPercent, inv.TaxRatePercent, inv.TaxAmount,
		inv.TotalAmount, inv.DueAmount, inv.PaymentStatus, inv.Notes)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_item WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("clear invoice items: %w", err)
	}
	return r.insertItems(ctx, inv.ID, inv.Items)
}

func (r *invoiceRepoPG) collect(rows pgx.Rows) ([]*Invoice, error) {
	defer rows.Close()
	var out []*Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

var invoiceSearchFilters = map[string]db.Filter{
	"patient":      {Kind: db.FilterExact, Column: "patient_id"},
	"clinician":    {Kind: db.FilterExact, Column: "clinician_id"},
	"status":       {Kind: db.FilterUpper, Column: "payment_status"},
	"kind":         {Kind: db.FilterUpper, Column: "kind"},
	"number":       {Kind: db.FilterContains, Column: "invoice_number"},
	"created_from": {Kind: db.FilterDateFrom, Column: "created_at"},
	"created_to":   {Kind: db.FilterDateTo, Column: "created_at"},
}

func (r *invoiceRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	qb := db.NewSearchQuery("invoice", invoiceCols)
	qb.Apply(params, invoiceSearchFilters)
	qb.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

const itemCols = `id, kind, description, quantity, unit_price, catalog_ref, clinician_ref, price_is_defaulted`

func (r *invoiceRepoPG) listItems(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM invoice_item WHERE invoice_id = $1 ORDER BY position`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LineItem{}
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.ID, &li.Kind, &li.Description, &li.Quantity, &li.UnitPrice,
			&li.CatalogRef, &li.ClinicianRef, &li.PriceIsDefaulted); err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// AddPayment inserts p and writes the invoice's new paid, due and status.
func (r *invoiceRepoPG) AddPayment(ctx context.Context, inv *Invoice, p *Payment) error {
	if err := r.insertPayment(ctx, p); err != nil {
		return err
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET paid_amount=$2, due_amount=$3, payment_status=$4, updated_at=NOW()
		WHERE id = $1`,
		inv.ID, inv.PaidAmount, inv.DueAmount, inv.PaymentStatus)
	if err != nil {
		return fmt.Errorf("update invoice balance: %w", err)
	}
	return nil
}

func (r *invoiceRepoPG) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, invoice_id, amount, method, reference, paid_at
		FROM invoice_payment WHERE invoice_id = $1 ORDER BY paid_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *invoiceRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE invoice SET payment_status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// =========== Fee Schedule (read-only) ===========

type feeScheduleRepoPG struct{ pool *pgxpool.Pool }

func NewFeeScheduleRepoPG(pool *pgxpool.Pool) FeeSchedule { return &feeScheduleRepoPG{pool: pool} }

func (r *feeScheduleRepoPG) ClinicianFee(ctx context.Context, clinicianID uuid.UUID) (decimal.Decimal, bool, error) {
	var fee *decimal.Decimal
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT consultation_fee FROM clinician_fee WHERE clinician_id = $1`, clinicianID).Scan(&fee)
	return optionalPrice(fee, err)
}

// optionalPrice turns a nullable price lookup into the (price, ok, err)
// shape the collaborator interfaces use. A missing row or NULL is not ok.
func optionalPrice(price *decimal.Decimal, err error) (decimal.Decimal, bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if price == nil {
		return decimal.Zero, false, nil
	}
	return *price, true, nil
}

// =========== Catalog (read-only) ===========

type catalogRepoPG struct{ pool *pgxpool.Pool }

func NewCatalogRepoPG(pool *pgxpool.Pool) Catalog { return &catalogRepoPG{pool: pool} }

func (r *catalogRepoPG) PharmacyPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, bool, error) {
	var price *decimal.Decimal
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT unit_price FROM pharmacy_product WHERE id = $1 AND active`, productID).Scan(&price)
	return optionalPrice(price, err)
}

func (r *catalogRepoPG) LabTestPrice(ctx context.Context, labTestID uuid.UUID) (decimal.Decimal, bool, error) {
	var price *decimal.Decimal
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT price FROM lab_test WHERE id = $1 AND active`, labTestID).Scan(&price)
	return optionalPrice(price, err)
}

// =========== Clinical Records (read-only) ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) ClinicalRecordStore {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) LatestPrescription(ctx context.Context, patientID uuid.UUID) (*Prescription, error) {
	q := db.Conn(ctx, r.pool)
	var rx Prescription
	err := q.QueryRow(ctx, `
		SELECT id, patient_id, clinician_id, issued_at FROM prescription
		WHERE patient_id = $1 ORDER BY issued_at DESC LIMIT 1`, patientID,
	).Scan(&rx.ID, &rx.PatientID, &rx.ClinicianID, &rx.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT product_id, name FROM prescription_medicine
		WHERE prescription_id = $1 ORDER BY position`, rx.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var m PrescribedMedicine
		if err := rows.Scan(&m.ProductID, &m.Name); err != nil {
			rows.Close()
			return nil, err
		}
		rx.Medicines = append(rx.Medicines, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT lab_test_id, name FROM prescription_lab_test
		WHERE prescription_id = $1 ORDER BY position`, rx.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l PrescribedLabTest
		if err := rows.Scan(&l.LabTestID, &l.Name); err != nil {
			return nil, err
		}
		rx.LabTests = append(rx.LabTests, l)
	}
	return &rx, rows.Err()
}
