package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/sinvoice/config"
	"github.com/s0up4200/sinvoice/filter"
	"github.com/s0up4200/sinvoice/sinvoice"
)

// fakeAPI is an in-memory sinvoice.API
type fakeAPI struct {
	mu        sync.Mutex
	documents []any
	fileCalls []sinvoice.GetInvoiceFileParams

	invoices  []sinvoice.InvoiceSummary
	templates []sinvoice.Template
	files     map[string][]byte
	fileNames map[string]string
	envelope  sinvoice.Envelope
}

func (f *fakeAPI) Login(context.Context) (*sinvoice.SessionToken, error) {
	return &sinvoice.SessionToken{AccessToken: "secret-access-token", TokenType: "bearer", ExpiresIn: 299, ClusterID: "cluster10"}, nil
}

func (f *fakeAPI) PreviewDraftInvoice(_ context.Context, invoice any) (*sinvoice.FileResponse, error) {
	f.mu.Lock()
	f.documents = append(f.documents, invoice)
	f.mu.Unlock()
	return &sinvoice.FileResponse{Envelope: f.envelope, FileToBytes: []byte("%PDF-")}, nil
}

func (f *fakeAPI) CreateInvoice(_ context.Context, invoice any) (*sinvoice.CreateInvoiceResponse, error) {
	f.mu.Lock()
	f.documents = append(f.documents, invoice)
	f.mu.Unlock()
	return &sinvoice.CreateInvoiceResponse{
		Envelope: f.envelope,
		Result: &sinvoice.InvoiceResult{
			InvoiceNo:       "K23TXM00000043",
			ReservationCode: "ABC123",
			TransactionID:   "tx-1",
		},
	}, nil
}

func (f *fakeAPI) GetInvoiceByTransactionUUID(_ context.Context, transactionUUID string) (*sinvoice.TransactionLookupResponse, error) {
	return &sinvoice.TransactionLookupResponse{
		TransactionUUID: transactionUUID,
		Envelope:        f.envelope,
		Result: []sinvoice.TransactionInvoice{
			{InvoiceNo: "K23TXM00000042", ReservationCode: "XYZ", Status: "Issued"},
		},
	}, nil
}

func (f *fakeAPI) GetInvoicesByDateRange(_ context.Context, _, _ string) (*sinvoice.InvoiceListResponse, error) {
	return &sinvoice.InvoiceListResponse{
		Envelope:  f.envelope,
		TotalRows: len(f.invoices),
		Invoices:  f.invoices,
	}, nil
}

func (f *fakeAPI) GetInvoiceFile(_ context.Context, params sinvoice.GetInvoiceFileParams) (*sinvoice.FileResponse, error) {
	f.mu.Lock()
	f.fileCalls = append(f.fileCalls, params)
	f.mu.Unlock()

	data, ok := f.files[params.InvoiceNo]
	if !ok {
		return nil, &sinvoice.Error{Kind: sinvoice.KindGetInvoiceFile, Message: "Response error: not found", Cause: errors.New("not found")}
	}
	return &sinvoice.FileResponse{FileName: f.fileNames[params.InvoiceNo], FileToBytes: data}, nil
}

func (f *fakeAPI) GetInvoiceTemplates(context.Context, string) (*sinvoice.TemplatesResponse, error) {
	return &sinvoice.TemplatesResponse{
		Envelope:  f.envelope,
		TotalRows: len(f.templates),
		Templates: f.templates,
	}, nil
}

var _ sinvoice.API = (*fakeAPI)(nil)

// setupCommand installs api as the command client and resets flag state
func setupCommand(t *testing.T, api sinvoice.API, format string) *bytes.Buffer {
	t.Helper()

	client = api
	cfg = &config.Config{Output: config.OutputConfig{Format: format}}
	filters = filter.NewManager()
	logger = zerolog.Nop()

	t.Cleanup(func() {
		client, cfg, filters = nil, nil, nil
		fromDate, toDate, filterExpr, preset = "", "", "", ""
		templateCode, fileType, outDir, concurrency = "", "PDF", ".", defaultConcurrency
		previewOut, newUUID = "", false
	})

	return &bytes.Buffer{}
}

func listInvoices() []sinvoice.InvoiceSummary {
	return []sinvoice.InvoiceSummary{
		{InvoiceNo: "K23TXM00000001", BuyerName: "Cong ty ABC", Total: decimal.NewFromInt(2500000), Currency: "VND"},
		{InvoiceNo: "K23TXM00000002", BuyerName: "Cong ty XYZ", Total: decimal.NewFromInt(90000), Currency: "VND"},
	}
}

func TestRunList(t *testing.T) {
	t.Run("filter expression", func(t *testing.T) {
		out := setupCommand(t, &fakeAPI{invoices: listInvoices()}, "table")
		fromDate, toDate = "01/06/2025", "30/06/2025"
		filterExpr = `Total > 1000000`

		require.NoError(t, runList(context.Background(), out))
		assert.Contains(t, out.String(), "K23TXM00000001")
		assert.NotContains(t, out.String(), "K23TXM00000002")
		assert.Contains(t, out.String(), "Found 1 invoice (2 in range)")
	})

	t.Run("preset from config", func(t *testing.T) {
		out := setupCommand(t, &fakeAPI{invoices: listInvoices()}, "json")
		require.NoError(t, filters.RegisterFilter("xyz", `buyer("xyz")`))
		fromDate, toDate = "01/06/2025", "30/06/2025"
		preset = "xyz"

		require.NoError(t, runList(context.Background(), out))

		var got []sinvoice.InvoiceSummary
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "K23TXM00000002", got[0].InvoiceNo)
	})

	t.Run("json keeps every remote field", func(t *testing.T) {
		var row sinvoice.InvoiceSummary
		require.NoError(t, json.Unmarshal([]byte(`{"invoiceNo": "C24MXD327283", "total": 1995820,
			"buyerIdNo": null, "subscriberNumber": "0912", "originalInvoiceId": null}`), &row))

		out := setupCommand(t, &fakeAPI{invoices: []sinvoice.InvoiceSummary{row}}, "json")
		fromDate, toDate = "01/06/2025", "30/06/2025"
		filterExpr = `Total > 1000000`

		require.NoError(t, runList(context.Background(), out))

		var got []map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "0912", got[0]["subscriberNumber"])
		assert.Contains(t, got[0], "buyerIdNo")
		assert.Contains(t, got[0], "originalInvoiceId")
	})

	t.Run("unknown preset", func(t *testing.T) {
		out := setupCommand(t, &fakeAPI{}, "table")
		fromDate, preset = "01/06/2025", "missing"

		err := runList(context.Background(), out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "preset 'missing' not found")
	})

	t.Run("filter and preset together", func(t *testing.T) {
		out := setupCommand(t, &fakeAPI{}, "table")
		filterExpr, preset = "State == 1", "any"

		assert.Error(t, runList(context.Background(), out))
	})

	t.Run("remote error envelope", func(t *testing.T) {
		api := &fakeAPI{envelope: sinvoice.Envelope{
			ErrorCode:   sinvoice.StringValue("INVOICE_NOT_FOUND"),
			Description: sinvoice.StringValue("Khong tim thay hoa don"),
		}}
		out := setupCommand(t, api, "table")
		fromDate, toDate = "01/06/2025", "30/06/2025"

		err := runList(context.Background(), out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Khong tim thay hoa don")
		assert.Contains(t, err.Error(), "INVOICE_NOT_FOUND")
	})
}

func TestRunFile(t *testing.T) {
	api := &fakeAPI{files: map[string][]byte{
		"K23TXM00000001": []byte("one"),
		"K23TXM00000002": []byte("two"),
	}}
	out := setupCommand(t, api, "table")
	templateCode, fileType, outDir, concurrency = "1/770", "pdf", t.TempDir(), 2

	err := runFile(context.Background(), out, []string{"K23TXM00000001", "K23TXM00000002", "K23TXM00000099"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 downloads failed")

	data, err := os.ReadFile(filepath.Join(outDir, "K23TXM00000001.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	data, err = os.ReadFile(filepath.Join(outDir, "K23TXM00000002.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.Len(t, api.fileCalls, 3)
	for _, call := range api.fileCalls {
		assert.Equal(t, "1/770", call.TemplateCode)
		assert.Equal(t, sinvoice.FileTypePDF, call.FileType)
	}
	assert.Contains(t, out.String(), "✗ K23TXM00000099")
}

func TestRunFileSharedRemoteName(t *testing.T) {
	api := &fakeAPI{
		files: map[string][]byte{
			"K23TXM00000001": []byte("one"),
			"K23TXM00000002": []byte("two"),
			"K23TXM00000003": []byte("three"),
		},
		fileNames: map[string]string{
			"K23TXM00000001": "invoice.pdf",
			"K23TXM00000002": "invoice.pdf",
			"K23TXM00000003": "K23TXM00000003.pdf",
		},
	}
	out := setupCommand(t, api, "table")
	fileType, outDir, concurrency = "pdf", t.TempDir(), 3

	require.NoError(t, runFile(context.Background(), out,
		[]string{"K23TXM00000001", "K23TXM00000002", "K23TXM00000003", "K23TXM00000001"}))

	for name, want := range map[string]string{
		"K23TXM00000001_invoice.pdf": "one",
		"K23TXM00000002_invoice.pdf": "two",
		"K23TXM00000003.pdf":         "three",
	} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(data), name)
	}

	_, err := os.Stat(filepath.Join(outDir, "invoice.pdf"))
	assert.True(t, os.IsNotExist(err))
	// repeated invoice numbers are fetched once
	assert.Len(t, api.fileCalls, 3)
}

func TestFileNamesClaim(t *testing.T) {
	names := &fileNames{taken: map[string]string{}}

	require.NoError(t, names.claim("out/A12.pdf", "A12"))
	require.NoError(t, names.claim("out/A12.pdf", "A12"))

	err := names.claim("out/A12.pdf", "A1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already written for invoice A12")
}

func TestRunFileRejectsUnknownType(t *testing.T) {
	out := setupCommand(t, &fakeAPI{}, "table")
	fileType = "docx"

	err := runFile(context.Background(), out, []string{"K23TXM00000001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file type")
}

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const invoiceDocument = `{"generalInvoiceInfo": {"invoiceType": "1", "templateCode": "1/770", "transactionUuid": "old"}, "buyerInfo": {"buyerName": "ABC"}}`

func TestRunCreate(t *testing.T) {
	t.Run("document sent unmodified", func(t *testing.T) {
		api := &fakeAPI{}
		out := setupCommand(t, api, "table")
		path := writeDocument(t, invoiceDocument)

		require.NoError(t, runCreate(context.Background(), out, path))
		require.Len(t, api.documents, 1)

		doc, ok := api.documents[0].(json.RawMessage)
		require.True(t, ok)
		assert.Equal(t, invoiceDocument, string(doc))
		assert.Contains(t, out.String(), "Invoice K23TXM00000043 created")
	})

	t.Run("new transaction uuid", func(t *testing.T) {
		api := &fakeAPI{}
		out := setupCommand(t, api, "table")
		path := writeDocument(t, invoiceDocument)
		newUUID = true

		require.NoError(t, runCreate(context.Background(), out, path))
		require.Len(t, api.documents, 1)

		var doc struct {
			GeneralInvoiceInfo map[string]string `json:"generalInvoiceInfo"`
			BuyerInfo          map[string]string `json:"buyerInfo"`
		}
		require.NoError(t, json.Unmarshal(api.documents[0].(json.RawMessage), &doc))

		id := doc.GeneralInvoiceInfo["transactionUuid"]
		assert.NotEqual(t, "old", id)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, "1/770", doc.GeneralInvoiceInfo["templateCode"])
		assert.Equal(t, "ABC", doc.BuyerInfo["buyerName"])
	})

	t.Run("invalid json", func(t *testing.T) {
		api := &fakeAPI{}
		out := setupCommand(t, api, "table")
		path := writeDocument(t, `{"generalInvoiceInfo":`)

		require.Error(t, runCreate(context.Background(), out, path))
		assert.Empty(t, api.documents)
	})
}

func TestRunPreview(t *testing.T) {
	out := setupCommand(t, &fakeAPI{}, "table")
	path := writeDocument(t, invoiceDocument)
	previewOut = filepath.Join(t.TempDir(), "draft.pdf")

	require.NoError(t, runPreview(context.Background(), out, path))

	data, err := os.ReadFile(previewOut)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(data))
	assert.Contains(t, out.String(), "Preview written to")
}

func TestRunTemplatesJSON(t *testing.T) {
	api := &fakeAPI{templates: []sinvoice.Template{{TemplateCode: "1/770", InvoiceSeri: "K23TXM"}}}
	out := setupCommand(t, api, "json")

	require.NoError(t, runTemplates(context.Background(), out, "1"))

	var got sinvoice.TemplatesResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Templates, 1)
	assert.Equal(t, "K23TXM", got.Templates[0].InvoiceSeri)
}

func TestRunGetAndLogin(t *testing.T) {
	out := setupCommand(t, &fakeAPI{}, "table")

	require.NoError(t, runGet(context.Background(), out, "8f0e7c1a"))
	assert.Contains(t, out.String(), "K23TXM00000042")
	assert.Contains(t, out.String(), "Reservation code: XYZ")

	out.Reset()
	require.NoError(t, runLogin(context.Background(), out))
	assert.Contains(t, out.String(), "Login successful")
	assert.Contains(t, out.String(), "Invoice cluster: cluster10")
	assert.NotContains(t, out.String(), "secret-access-token")

	out.Reset()
	cfg.Output.Format = "json"
	require.NoError(t, runLogin(context.Background(), out))

	var session map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &session))
	assert.Equal(t, "cluster10", session["invoice_cluster"])
	assert.Equal(t, "bearer", session["token_type"])
	assert.NotContains(t, out.String(), "secret-access-token")
}

func TestStampTransactionUUID(t *testing.T) {
	stamped, err := stampTransactionUUID([]byte(`{"buyerInfo": {}}`), "id-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"buyerInfo": {}, "generalInvoiceInfo": {"transactionUuid": "id-1"}}`, string(stamped))

	_, err = stampTransactionUUID([]byte(`[1, 2]`), "id-1")
	assert.Error(t, err)

	_, err = stampTransactionUUID([]byte(`{"generalInvoiceInfo": "x"}`), "id-1")
	assert.Error(t, err)
}

func TestRemoteFailure(t *testing.T) {
	assert.NoError(t, remoteFailure(sinvoice.Envelope{}))
	assert.NoError(t, remoteFailure(sinvoice.Envelope{ErrorCode: sinvoice.NumberValue(200)}))

	err := remoteFailure(sinvoice.Envelope{ErrorCode: sinvoice.NumberValue(500)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error code 500")
}
