package sinvoice

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValueKind describes what a Value holds
type ValueKind int

const (
	// ValueAbsent means the field was missing from the response
	ValueAbsent ValueKind = iota
	// ValueNull means the field was present and null
	ValueNull
	// ValueString means the field held a JSON string
	ValueString
	// ValueNumber means the field held a JSON number
	ValueNumber
)

// Value is a loosely typed envelope field: absent, null, string or number
type Value struct {
	kind ValueKind
	str  string
	num  json.Number
}

// StringValue returns a Value holding s
func StringValue(s string) Value {
	return Value{kind: ValueString, str: s}
}

// NumberValue returns a Value holding n
func NumberValue(n int64) Value {
	return Value{kind: ValueNumber, num: json.Number(fmt.Sprint(n))}
}

// NullValue returns an explicit null Value
func NullValue() Value {
	return Value{kind: ValueNull}
}

// Kind returns the kind of the value
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsSet reports whether the value is a string or a number
func (v Value) IsSet() bool {
	return v.kind == ValueString || v.kind == ValueNumber
}

// IsNull reports whether the value was explicitly null
func (v Value) IsNull() bool {
	return v.kind == ValueNull
}

// String returns the textual form of the value, or "" when absent or null
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num.String()
	default:
		return ""
	}
}

// Int64 returns the numeric value, if the value is a number
func (v Value) Int64() (int64, bool) {
	if v.kind != ValueNumber {
		return 0, false
	}
	n, err := v.num.Int64()
	return n, err == nil
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{kind: ValueNull}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{kind: ValueString, str: s}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("value must be null, a string or a number: %s", data)
	}
	*v = Value{kind: ValueNumber, num: n}
	return nil
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return []byte(v.num.String()), nil
	default:
		return []byte("null"), nil
	}
}

// Envelope holds the status fields common to every response
type Envelope struct {
	ErrorCode   Value `json:"errorCode"`
	Description Value `json:"description"`
}

// Failed reports whether the remote set a non-empty error code.
// Some endpoints return errorCode 200 on success, which does not count as a failure.
func (e Envelope) Failed() bool {
	if !e.ErrorCode.IsSet() {
		return false
	}
	if n, ok := e.ErrorCode.Int64(); ok {
		return n != 0 && n != 200
	}
	return e.ErrorCode.String() != ""
}

// SessionToken is the record returned by the login exchange
type SessionToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	IssuedAt     int64  `json:"iat"`
	ClusterID    string `json:"invoice_cluster"`
	Type         int    `json:"type"`
	TokenID      string `json:"jti"`
}

// FileResponse is returned by PreviewDraftInvoice and GetInvoiceFile
type FileResponse struct {
	Envelope
	FileToBytes   []byte `json:"fileToBytes"`
	PaymentStatus bool   `json:"paymentStatus"`
	FileName      string `json:"fileName"`
}

// InvoiceResult identifies an issued invoice
type InvoiceResult struct {
	SupplierTaxCode string `json:"supplierTaxCode"`
	InvoiceNo       string `json:"invoiceNo"`
	TransactionID   string `json:"transactionID"`
	ReservationCode string `json:"reservationCode"`
	CodeOfTax       string `json:"codeOfTax"`
}

// CreateInvoiceResponse is returned by CreateInvoice
type CreateInvoiceResponse struct {
	Envelope
	Result *InvoiceResult `json:"result"`
}

// TransactionInvoice is one match of a transaction UUID lookup
type TransactionInvoice struct {
	SupplierTaxCode string `json:"supplierTaxCode"`
	InvoiceNo       string `json:"invoiceNo"`
	ReservationCode string `json:"reservationCode"`
	IssueDate       int64  `json:"issueDate"`
	Status          string `json:"status"`
}

// TransactionLookupResponse is returned by GetInvoiceByTransactionUUID
type TransactionLookupResponse struct {
	TransactionUUID string `json:"transactionUuid"`
	Envelope
	Result []TransactionInvoice `json:"result"`
}

// InvoiceSummary is one row of the invoice list. The typed fields cover what
// filters and tables use; Raw keeps the full row as received.
type InvoiceSummary struct {
	InvoiceID         int64               `json:"invoiceId"`
	InvoiceType       string              `json:"invoiceType"`
	AdjustmentType    string              `json:"adjustmentType"`
	TemplateCode      string              `json:"templateCode"`
	InvoiceSeri       string              `json:"invoiceSeri"`
	InvoiceNumber     string              `json:"invoiceNumber"`
	InvoiceNo         string              `json:"invoiceNo"`
	Currency          string              `json:"currency"`
	Total             decimal.Decimal     `json:"total"`
	TotalBeforeTax    decimal.Decimal     `json:"totalBeforeTax"`
	TaxAmount         decimal.Decimal     `json:"taxAmount"`
	TaxRate           decimal.NullDecimal `json:"taxRate"`
	IssueDate         int64               `json:"issueDate"`
	CreateTime        int64               `json:"createTime"`
	State             int                 `json:"state"`
	StateCode         int                 `json:"stateCode"`
	PaymentStatus     int                 `json:"paymentStatus"`
	PaymentStatusName string              `json:"paymentStatusName"`
	PaymentMethod     string              `json:"paymentMethod"`
	ExchangeStatus    int                 `json:"exchangeStatus"`
	SupplierTaxCode   string              `json:"supplierTaxCode"`
	BuyerTaxCode      string              `json:"buyerTaxCode"`
	BuyerName         string              `json:"buyerName"`
	TransactionUUID   string              `json:"transactionUuid"`
	Description       *string             `json:"description"`

	// Raw is the row exactly as decoded, emitted again by MarshalJSON
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps a copy of the row
func (s *InvoiceSummary) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	type plain InvoiceSummary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*s = InvoiceSummary(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the decoded row unchanged, or the typed fields for
// a summary built in code
func (s InvoiceSummary) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}

	type plain InvoiceSummary
	return json.Marshal(plain(s))
}

// InvoiceListResponse is returned by GetInvoicesByDateRange
type InvoiceListResponse struct {
	Envelope
	TotalRows int              `json:"totalRows"`
	Invoices  []InvoiceSummary `json:"invoices"`
}

// Template describes an invoice template registered for the supplier
type Template struct {
	TemplateCode         string `json:"templateCode"`
	InvoiceSeri          string `json:"invoiceSeri"`
	OriginalTemplateCode string `json:"originalTemplateCode"`
	TaxPolicy            string `json:"taxPolicy"`
}

// TemplatesResponse is returned by GetInvoiceTemplates
type TemplatesResponse struct {
	Envelope
	TotalRows int        `json:"totalRows"`
	Templates []Template `json:"template"`
}

// FileType selects the rendering returned by GetInvoiceFile
type FileType string

const (
	// FileTypePDF requests a PDF rendering
	FileTypePDF FileType = "PDF"
	// FileTypeZIP requests a ZIP archive
	FileTypeZIP FileType = "ZIP"
)

// GetInvoiceFileParams identifies the invoice file to fetch
type GetInvoiceFileParams struct {
	InvoiceNo    string
	TemplateCode string
	FileType     FileType
}
