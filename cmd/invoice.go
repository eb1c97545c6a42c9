package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/sinvoice/filter"
	"github.com/s0up4200/sinvoice/sinvoice"
)

const (
	issueDateLayout    = "02/01/2006"
	defaultConcurrency = 4
	maxConcurrency     = 16
)

var (
	// list flags
	fromDate   string
	toDate     string
	filterExpr string
	preset     string

	// file flags
	templateCode string
	fileType     string
	outDir       string
	concurrency  int

	// preview and create flags
	previewOut string
	newUUID    bool
)

func init() {
	rootCmd.AddCommand(loginCmd, templatesCmd, listCmd, getCmd, fileCmd, previewCmd, createCmd)

	listCmd.Flags().StringVar(&fromDate, "from", "", "start of the issue date range (DD/MM/YYYY)")
	listCmd.Flags().StringVar(&toDate, "to", "", "end of the issue date range (DD/MM/YYYY, default today)")
	listCmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "filter expression applied to the returned invoices")
	listCmd.Flags().StringVarP(&preset, "preset", "p", "", "use a named filter from config")
	_ = listCmd.MarkFlagRequired("from")

	fileCmd.Flags().StringVarP(&templateCode, "template", "t", "", "invoice template code, e.g. 1/770")
	fileCmd.Flags().StringVar(&fileType, "type", string(sinvoice.FileTypePDF), "file type: PDF or ZIP")
	fileCmd.Flags().StringVar(&outDir, "dir", ".", "directory to write files into")
	fileCmd.Flags().IntVarP(&concurrency, "concurrency", "c", defaultConcurrency, "number of parallel downloads")
	_ = fileCmd.MarkFlagRequired("template")

	previewCmd.Flags().StringVar(&previewOut, "out", "", "where to write the preview (default <document>-preview.pdf)")
	previewCmd.Flags().BoolVar(&newUUID, "new-uuid", false, "stamp a fresh generalInvoiceInfo.transactionUuid before sending")
	createCmd.Flags().BoolVar(&newUUID, "new-uuid", false, "stamp a fresh generalInvoiceInfo.transactionUuid before sending")
}

// loginCmd verifies credentials
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials against S-Invoice",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(cmd.Context(), cmd.OutOrStdout())
	},
}

func runLogin(ctx context.Context, w io.Writer) error {
	token, err := client.Login(ctx)
	if err != nil {
		return err
	}

	if jsonOutput() {
		return writeJSON(w, struct {
			TokenType string `json:"token_type"`
			ExpiresIn int64  `json:"expires_in"`
			Scope     string `json:"scope,omitempty"`
			ClusterID string `json:"invoice_cluster,omitempty"`
		}{token.TokenType, token.ExpiresIn, token.Scope, token.ClusterID})
	}

	fmt.Fprintln(w, "✓ Login successful!")
	fmt.Fprintf(w, "- Token type: %s\n", token.TokenType)
	fmt.Fprintf(w, "- Expires in: %s\n", time.Duration(token.ExpiresIn)*time.Second)
	if token.ClusterID != "" {
		fmt.Fprintf(w, "- Invoice cluster: %s\n", token.ClusterID)
	}
	return nil
}

// templatesCmd lists registered templates
var templatesCmd = &cobra.Command{
	Use:   "templates <invoiceType>",
	Short: "List invoice templates registered for an invoice type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTemplates(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func runTemplates(ctx context.Context, w io.Writer, invoiceType string) error {
	resp, err := client.GetInvoiceTemplates(ctx, invoiceType)
	if err != nil {
		return err
	}
	if err := remoteFailure(resp.Envelope); err != nil {
		return err
	}

	if jsonOutput() {
		return writeJSON(w, resp)
	}

	if len(resp.Templates) == 0 {
		fmt.Fprintf(w, "No templates registered for invoice type %s.\n", invoiceType)
		return nil
	}

	fmt.Fprintf(w, "Found %d %s:\n\n", len(resp.Templates), plural(len(resp.Templates), "template"))
	fmt.Fprintf(w, "%-16s %-12s %-16s %s\n", "TEMPLATE", "SERIES", "ORIGINAL", "TAX POLICY")
	fmt.Fprintln(w, strings.Repeat("━", 60))
	for _, t := range resp.Templates {
		fmt.Fprintf(w, "%-16s %-12s %-16s %s\n", t.TemplateCode, t.InvoiceSeri, t.OriginalTemplateCode, t.TaxPolicy)
	}
	return nil
}

// listCmd lists invoices in a date range
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices issued in a date range",
	Long: `List invoices issued between --from and --to (DD/MM/YYYY).

The optional --filter expression is evaluated locally against each invoice, e.g.
  sinvoice list --from 01/06/2025 --filter 'Total > 1000000 and buyer("ABC")'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), cmd.OutOrStdout())
	},
}

func runList(ctx context.Context, w io.Writer) error {
	f, err := selectFilter()
	if err != nil {
		return err
	}

	to := toDate
	if to == "" {
		to = time.Now().Format(issueDateLayout)
	}

	logger.Info().Str("from", fromDate).Str("to", to).Msg("Fetching invoices")

	resp, err := client.GetInvoicesByDateRange(ctx, fromDate, to)
	if err != nil {
		return err
	}
	if err := remoteFailure(resp.Envelope); err != nil {
		return err
	}

	invoices := resp.Invoices
	if f != nil {
		invoices = filter.Apply(f, invoices)
		logger.Debug().
			Str("filter", f.Expression()).
			Int("matched", len(invoices)).
			Int("total", len(resp.Invoices)).
			Msg("Applied invoice filter")
	}

	if jsonOutput() {
		return writeJSON(w, invoices)
	}

	if len(invoices) == 0 {
		fmt.Fprintln(w, "No invoices found matching the criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d %s (%d in range):\n\n", len(invoices), plural(len(invoices), "invoice"), resp.TotalRows)
	fmt.Fprintf(w, "%-18s %-10s %-32s %16s %-4s %s\n", "INVOICE", "ISSUED", "BUYER", "TOTAL", "CUR", "PAYMENT")
	fmt.Fprintln(w, strings.Repeat("━", 95))
	for _, inv := range invoices {
		issued := "-"
		if inv.IssueDate > 0 {
			issued = time.UnixMilli(inv.IssueDate).Format(issueDateLayout)
		}
		fmt.Fprintf(w, "%-18s %-10s %-32s %16s %-4s %s\n",
			inv.InvoiceNo,
			issued,
			truncate(inv.BuyerName, 32),
			inv.Total.StringFixed(0),
			inv.Currency,
			inv.PaymentStatusName,
		)
	}
	return nil
}

// selectFilter resolves --filter and --preset. Both empty means no filtering.
func selectFilter() (filter.CompiledFilter, error) {
	if filterExpr != "" && preset != "" {
		return nil, fmt.Errorf("--filter and --preset are mutually exclusive")
	}

	if filterExpr != "" {
		f, err := filters.Compile(filterExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid filter expression: %w", err)
		}
		return f, nil
	}

	if preset != "" {
		f, ok := filters.GetFilter(preset)
		if !ok {
			return nil, fmt.Errorf("preset '%s' not found in config", preset)
		}
		return f, nil
	}

	return nil, nil
}

// getCmd looks up an invoice by transaction UUID
var getCmd = &cobra.Command{
	Use:   "get <transactionUuid>",
	Short: "Look up invoices by the transaction UUID they were issued with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func runGet(ctx context.Context, w io.Writer, transactionUUID string) error {
	resp, err := client.GetInvoiceByTransactionUUID(ctx, transactionUUID)
	if err != nil {
		return err
	}
	if err := remoteFailure(resp.Envelope); err != nil {
		return err
	}

	if jsonOutput() {
		return writeJSON(w, resp)
	}

	if len(resp.Result) == 0 {
		fmt.Fprintf(w, "No invoice found for transaction %s.\n", transactionUUID)
		return nil
	}

	for _, inv := range resp.Result {
		fmt.Fprintf(w, "• %s\n", inv.InvoiceNo)
		fmt.Fprintf(w, "  Reservation code: %s\n", inv.ReservationCode)
		fmt.Fprintf(w, "  Status: %s\n", inv.Status)
		if inv.IssueDate > 0 {
			fmt.Fprintf(w, "  Issued: %s\n", time.UnixMilli(inv.IssueDate).Format(issueDateLayout))
		}
	}
	return nil
}

// fileCmd downloads invoice files
var fileCmd = &cobra.Command{
	Use:   "file <invoiceNo>...",
	Short: "Download the rendered file of one or more issued invoices",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

// downloadResult records the outcome of one file download
type downloadResult struct {
	InvoiceNo string `json:"invoiceNo"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runFile(ctx context.Context, w io.Writer, invoiceNos []string) error {
	ft := sinvoice.FileType(strings.ToUpper(fileType))
	if ft != sinvoice.FileTypePDF && ft != sinvoice.FileTypeZIP {
		return fmt.Errorf("invalid file type: %s (must be PDF or ZIP)", fileType)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	limit := concurrency
	if limit < 1 {
		limit = 1
	}
	if limit > maxConcurrency {
		limit = maxConcurrency
	}

	invoiceNos = uniqueInvoiceNos(invoiceNos)
	results := make([]downloadResult, len(invoiceNos))
	names := &fileNames{taken: make(map[string]string, len(invoiceNos))}
	var mu sync.Mutex
	var failed int

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, invoiceNo := range invoiceNos {
		g.Go(func() error {
			path, err := downloadFile(ctx, invoiceNo, ft, names)
			result := downloadResult{InvoiceNo: invoiceNo, Path: path}
			if err != nil {
				logger.Warn().
					Err(err).
					Str("invoice_no", invoiceNo).
					Msg("Failed to download invoice file")
				result.Error = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
			}
			results[i] = result
			// Keep downloading the rest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if jsonOutput() {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "✗ %s: %s\n", r.InvoiceNo, r.Error)
				continue
			}
			fmt.Fprintf(w, "✓ %s → %s\n", r.InvoiceNo, r.Path)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d %s failed", failed, len(invoiceNos), plural(len(invoiceNos), "download"))
	}
	return nil
}

// fileNames hands out output paths so two invoices never write the same file
type fileNames struct {
	mu    sync.Mutex
	taken map[string]string
}

func (n *fileNames) claim(path, invoiceNo string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if owner, ok := n.taken[path]; ok && owner != invoiceNo {
		return fmt.Errorf("%s is already written for invoice %s", path, owner)
	}
	n.taken[path] = invoiceNo
	return nil
}

// outputName prefixes the remote file name with the invoice number unless it already carries it
func outputName(invoiceNo, remote string, ft sinvoice.FileType) string {
	if remote == "" {
		return invoiceNo + "." + strings.ToLower(string(ft))
	}
	base := filepath.Base(remote)
	if strings.HasPrefix(base, invoiceNo) {
		return base
	}
	return invoiceNo + "_" + base
}

// uniqueInvoiceNos drops repeated invoice numbers, keeping the first occurrence
func uniqueInvoiceNos(invoiceNos []string) []string {
	seen := make(map[string]struct{}, len(invoiceNos))
	out := make([]string, 0, len(invoiceNos))
	for _, no := range invoiceNos {
		if _, ok := seen[no]; ok {
			continue
		}
		seen[no] = struct{}{}
		out = append(out, no)
	}
	return out
}

func downloadFile(ctx context.Context, invoiceNo string, ft sinvoice.FileType, names *fileNames) (string, error) {
	resp, err := client.GetInvoiceFile(ctx, sinvoice.GetInvoiceFileParams{
		InvoiceNo:    invoiceNo,
		TemplateCode: templateCode,
		FileType:     ft,
	})
	if err != nil {
		return "", err
	}
	if err := remoteFailure(resp.Envelope); err != nil {
		return "", err
	}

	path := filepath.Join(outDir, outputName(invoiceNo, resp.FileName, ft))
	if err := names.claim(path, invoiceNo); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, resp.FileToBytes, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// previewCmd renders a draft invoice
var previewCmd = &cobra.Command{
	Use:   "preview <invoice.json>",
	Short: "Render a draft invoice without issuing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func runPreview(ctx context.Context, w io.Writer, documentPath string) error {
	doc, err := readInvoiceDocument(documentPath)
	if err != nil {
		return err
	}

	resp, err := client.PreviewDraftInvoice(ctx, doc)
	if err != nil {
		return err
	}
	if err := remoteFailure(resp.Envelope); err != nil {
		return err
	}

	out := previewOut
	if out == "" {
		out = strings.TrimSuffix(documentPath, filepath.Ext(documentPath)) + "-preview.pdf"
	}
	if err := os.WriteFile(out, resp.FileToBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}

	if jsonOutput() {
		return writeJSON(w, map[string]any{"path": out, "bytes": len(resp.FileToBytes)})
	}
	fmt.Fprintf(w, "✓ Preview written to %s (%d bytes)\n", out, len(resp.FileToBytes))
	return nil
}

// createCmd issues an invoice
var createCmd = &cobra.Command{
	Use:   "create <invoice.json>",
	Short: "Issue an invoice from a JSON document",
	Long: `Issue an invoice from a JSON document in the S-Invoice createInvoice format.

The document is sent byte for byte unless --new-uuid is given, in which case
generalInvoiceInfo.transactionUuid is replaced with a fresh UUID so the invoice
can later be found with "sinvoice get".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func runCreate(ctx context.Context, w io.Writer, documentPath string) error {
	doc, err := readInvoiceDocument(documentPath)
	if err != nil {
		return err
	}

	resp, err := client.CreateInvoice(ctx, doc)
	if err != nil {
		return err
	}
	if err := remoteFailure(resp.Envelope); err != nil {
		return err
	}

	if jsonOutput() {
		return writeJSON(w, resp)
	}

	if resp.Result == nil {
		fmt.Fprintln(w, "✓ Invoice submitted")
		return nil
	}
	fmt.Fprintf(w, "✓ Invoice %s created\n", resp.Result.InvoiceNo)
	fmt.Fprintf(w, "- Reservation code: %s\n", resp.Result.ReservationCode)
	fmt.Fprintf(w, "- Transaction ID: %s\n", resp.Result.TransactionID)
	if resp.Result.CodeOfTax != "" {
		fmt.Fprintf(w, "- Tax authority code: %s\n", resp.Result.CodeOfTax)
	}
	return nil
}

// readInvoiceDocument loads a JSON invoice document, stamping a new
// transaction UUID when --new-uuid is set
func readInvoiceDocument(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice document: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invoice document %s is not valid JSON", path)
	}

	if !newUUID {
		return json.RawMessage(data), nil
	}

	id := uuid.NewString()
	stamped, err := stampTransactionUUID(data, id)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("transaction_uuid", id).Msg("Stamped new transaction UUID")
	return stamped, nil
}

// stampTransactionUUID sets generalInvoiceInfo.transactionUuid, leaving every
// other value untouched. Object keys come back sorted.
func stampTransactionUUID(data []byte, id string) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invoice document must be a JSON object: %w", err)
	}

	info := map[string]json.RawMessage{}
	if raw, ok := doc["generalInvoiceInfo"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("generalInvoiceInfo must be a JSON object: %w", err)
		}
	}

	quoted, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	info["transactionUuid"] = quoted

	if doc["generalInvoiceInfo"], err = json.Marshal(info); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// remoteFailure turns a populated error envelope into an error
func remoteFailure(env sinvoice.Envelope) error {
	if !env.Failed() {
		return nil
	}
	if env.Description.IsSet() {
		return fmt.Errorf("S-Invoice rejected the request: %s (%s)", env.Description.String(), env.ErrorCode.String())
	}
	return fmt.Errorf("S-Invoice rejected the request with error code %s", env.ErrorCode.String())
}
