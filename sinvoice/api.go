package sinvoice

import (
	"context"
)

// API defines the interface for S-Invoice operations
type API interface {
	// Login performs the login exchange
	Login(ctx context.Context) (*SessionToken, error)

	// PreviewDraftInvoice renders a draft without issuing it
	PreviewDraftInvoice(ctx context.Context, invoice any) (*FileResponse, error)

	// CreateInvoice issues an invoice
	CreateInvoice(ctx context.Context, invoice any) (*CreateInvoiceResponse, error)

	// GetInvoiceByTransactionUUID looks up invoices by transaction UUID
	GetInvoiceByTransactionUUID(ctx context.Context, transactionUUID string) (*TransactionLookupResponse, error)

	// GetInvoicesByDateRange lists invoices between two DD/MM/YYYY dates
	GetInvoicesByDateRange(ctx context.Context, fromDate, toDate string) (*InvoiceListResponse, error)

	// GetInvoiceFile fetches the rendered file of an invoice
	GetInvoiceFile(ctx context.Context, params GetInvoiceFileParams) (*FileResponse, error)

	// GetInvoiceTemplates lists templates for an invoice type
	GetInvoiceTemplates(ctx context.Context, invoiceType string) (*TemplatesResponse, error)
}

var _ API = (*Client)(nil)
