package sinvoice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/rs/zerolog"
)

// apiRoot prefixes every invoice operation path
const apiRoot = "/services/einvoiceapplication/api/InvoiceAPI"

var datePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Client talks to the S-Invoice API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	userAgent  string
	tokenCache *TokenCache
	logger     zerolog.Logger
}

// NewClient validates cfg and creates a client. No request is made.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.timeout}
	}

	return &Client{
		cfg:        cfg,
		baseURL:    cfg.baseURL(),
		httpClient: httpClient,
		userAgent:  options.userAgent,
		tokenCache: options.tokenCache,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized endpoint requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call runs login, then one dispatch, translating any failure into kind
func (c *Client) call(ctx context.Context, kind ErrorKind, path string, body any, enc Encoding, out any) error {
	token, err := c.Login(ctx)
	if err != nil {
		return translate(kind, err)
	}

	if err := c.send(ctx, path, body, enc, token.AccessToken, out); err != nil {
		var te *TransportError
		if c.tokenCache != nil && errors.As(err, &te) && te.IsUnauthorized() {
			c.tokenCache.Invalidate(c.cacheKey())
		}
		return translate(kind, err)
	}

	return nil
}

// PreviewDraftInvoice renders an invoice document without issuing it
func (c *Client) PreviewDraftInvoice(ctx context.Context, invoice any) (*FileResponse, error) {
	path := fmt.Sprintf("%s/InvoiceUtilsWS/createInvoiceDraftPreview/%s", apiRoot, escapePath(c.cfg.Username))

	var resp FileResponse
	if err := c.call(ctx, KindPreviewDraftInvoice, path, invoice, EncodingJSON, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateInvoice issues an invoice. The document is sent exactly as given.
func (c *Client) CreateInvoice(ctx context.Context, invoice any) (*CreateInvoiceResponse, error) {
	path := fmt.Sprintf("%s/InvoiceWS/createInvoice/%s", apiRoot, escapePath(c.cfg.Username))

	var resp CreateInvoiceResponse
	if err := c.call(ctx, KindCreateInvoice, path, invoice, EncodingJSON, &resp); err != nil {
		return nil, err
	}

	if resp.Result != nil {
		c.logger.Info().
			Str("invoice_no", resp.Result.InvoiceNo).
			Str("reservation_code", resp.Result.ReservationCode).
			Msg("Created invoice")
	}
	return &resp, nil
}

type transactionLookupRequest struct {
	SupplierTaxCode string `url:"supplierTaxCode"`
	TransactionUUID string `url:"transactionUuid"`
}

// GetInvoiceByTransactionUUID looks up invoices issued under a transaction UUID
func (c *Client) GetInvoiceByTransactionUUID(ctx context.Context, transactionUUID string) (*TransactionLookupResponse, error) {
	body := transactionLookupRequest{
		SupplierTaxCode: c.cfg.Username,
		TransactionUUID: transactionUUID,
	}

	var resp TransactionLookupResponse
	if err := c.call(ctx, KindGetInvoice, apiRoot+"/InvoiceWS/searchInvoiceByTransactionUuid", body, EncodingForm, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type invoiceListRequest struct {
	SupplierTaxCode string `json:"supplierTaxCode"`
	FromDate        string `json:"fromDate"`
	ToDate          string `json:"toDate"`
}

// GetInvoicesByDateRange lists invoices issued between fromDate and toDate (DD/MM/YYYY).
// Malformed dates fail with KindValidation before any request is made.
func (c *Client) GetInvoicesByDateRange(ctx context.Context, fromDate, toDate string) (*InvoiceListResponse, error) {
	if !datePattern.MatchString(fromDate) {
		return nil, newValidationError(fmt.Sprintf("invalid fromDate %q: expected DD/MM/YYYY", fromDate))
	}
	if !datePattern.MatchString(toDate) {
		return nil, newValidationError(fmt.Sprintf("invalid toDate %q: expected DD/MM/YYYY", toDate))
	}

	body := invoiceListRequest{
		SupplierTaxCode: c.cfg.Username,
		FromDate:        fromDate,
		ToDate:          toDate,
	}

	var resp InvoiceListResponse
	if err := c.call(ctx, KindGetInvoices, apiRoot+"/InvoiceUtilsWS/getListInvoiceDataControl", body, EncodingJSON, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("total_rows", resp.TotalRows).
		Int("count", len(resp.Invoices)).
		Msg("Retrieved invoices from S-Invoice")

	return &resp, nil
}

type invoiceFileRequest struct {
	SupplierTaxCode string   `json:"supplierTaxCode"`
	InvoiceNo       string   `json:"invoiceNo"`
	TemplateCode    string   `json:"templateCode"`
	FileType        FileType `json:"fileType"`
}

// GetInvoiceFile fetches the rendered file of an issued invoice
func (c *Client) GetInvoiceFile(ctx context.Context, params GetInvoiceFileParams) (*FileResponse, error) {
	body := invoiceFileRequest{
		SupplierTaxCode: c.cfg.Username,
		InvoiceNo:       params.InvoiceNo,
		TemplateCode:    params.TemplateCode,
		FileType:        params.FileType,
	}

	var resp FileResponse
	if err := c.call(ctx, KindGetInvoiceFile, apiRoot+"/InvoiceUtilsWS/getInvoiceRepresentationFile", body, EncodingJSON, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type templatesRequest struct {
	TaxCode     string `json:"taxCode"`
	InvoiceType string `json:"invoiceType"`
}

// GetInvoiceTemplates lists the templates registered for an invoice type
func (c *Client) GetInvoiceTemplates(ctx context.Context, invoiceType string) (*TemplatesResponse, error) {
	body := templatesRequest{
		TaxCode:     c.cfg.Username,
		InvoiceType: invoiceType,
	}

	var resp TemplatesResponse
	if err := c.call(ctx, KindGetTemplates, apiRoot+"/InvoiceUtilsWS/getInvoiceTemplates", body, EncodingJSON, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
