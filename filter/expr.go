package filter

import (
	"maps"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/sinvoice/sinvoice"
)

// Date layouts accepted by parseDate, S-Invoice's own dd/MM/yyyy first
var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// exprFilter implements CompiledFilter using the expr language
type exprFilter struct {
	expression string
	program    *vm.Program
	helpers    map[string]any
}

// ExprCompilerOption configures an expr compiler
type ExprCompilerOption func(*exprCompiler)

// WithCache enables filter caching with the specified size
func WithCache(size int) ExprCompilerOption {
	return func(c *exprCompiler) {
		if size > 0 {
			c.cache = newFilterCache(size)
		}
	}
}

// WithCustomFunctions adds custom helper functions
func WithCustomFunctions(funcs map[string]any) ExprCompilerOption {
	return func(c *exprCompiler) {
		maps.Copy(c.helperFuncs, funcs)
	}
}

// NewExprCompiler creates a new expr-based filter compiler
func NewExprCompiler(opts ...ExprCompilerOption) Compiler {
	c := &exprCompiler{
		helperFuncs: createHelperFunctions(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// exprCompiler implements CachingCompiler for expr-based filters
type exprCompiler struct {
	helperFuncs map[string]any
	cache       *filterCache
}

// Compile compiles an expression into an executable filter
func (c *exprCompiler) Compile(expression string) (CompiledFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	// Type-check against a zero invoice so misspelled fields fail here
	program, err := expr.Compile(expression,
		expr.Env(createRuntimeEnvironment(sinvoice.InvoiceSummary{}, c.helperFuncs)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	filter := &exprFilter{
		expression: expression,
		program:    program,
		helpers:    c.helperFuncs,
	}

	if c.cache != nil {
		c.cache.Add(expression, filter)
	}

	return filter, nil
}

// Clear removes all cached filters
func (c *exprCompiler) Clear() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// Size returns the number of cached filters
func (c *exprCompiler) Size() int {
	if c.cache != nil {
		return c.cache.Len()
	}
	return 0
}

// Evaluate reports whether the invoice matches. Evaluation errors count as no match.
func (f *exprFilter) Evaluate(invoice sinvoice.InvoiceSummary) bool {
	ok, err := f.Match(invoice)
	return err == nil && ok
}

// Match evaluates the filter against an invoice
func (f *exprFilter) Match(invoice sinvoice.InvoiceSummary) (bool, error) {
	result, err := expr.Run(f.program, createRuntimeEnvironment(invoice, f.helpers))
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			InvoiceNo:  invoice.InvoiceNo,
			Reason:     "failed to evaluate expression",
			Err:        err,
		}
	}

	// AsBool guarantees the type
	return result.(bool), nil
}

// Expression returns the original expression
func (f *exprFilter) Expression() string {
	return f.expression
}

// createHelperFunctions creates the static helper functions used during compilation
func createHelperFunctions() map[string]any {
	funcs := make(map[string]any, 16)

	// Date helpers
	funcs["daysSince"] = func(t time.Time) int {
		return int(time.Since(t).Hours() / 24)
	}
	funcs["daysAgo"] = func(days int) time.Time {
		return time.Now().AddDate(0, 0, -days)
	}
	funcs["monthsAgo"] = func(months int) time.Time {
		return time.Now().AddDate(0, -months, 0)
	}
	funcs["parseDate"] = parseDate
	// Case-insensitive string helpers. expr's own contains/startsWith
	// operators and lower/upper/now builtins cover the rest.
	funcs["containsFold"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	funcs["equalFold"] = strings.EqualFold

	return funcs
}

// parseDate returns the zero time for input in no known layout
func parseDate(value string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// millisToTime converts the API's epoch-millisecond timestamps
func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// createRuntimeEnvironment creates the environment for filter evaluation
func createRuntimeEnvironment(invoice sinvoice.InvoiceSummary, helpers map[string]any) map[string]any {
	env := make(map[string]any, len(helpers)+32)
	maps.Copy(env, helpers)

	issued := millisToTime(invoice.IssueDate)

	env["Invoice"] = invoice

	// Invoice-specific helpers
	env["buyer"] = func(name string) bool {
		return strings.Contains(strings.ToLower(invoice.BuyerName), strings.ToLower(name))
	}
	env["hasTemplate"] = func(code string) bool {
		return strings.EqualFold(invoice.TemplateCode, code)
	}
	env["issuedAfter"] = func(t time.Time) bool {
		return !issued.IsZero() && issued.After(t)
	}
	env["issuedBefore"] = func(t time.Time) bool {
		return !issued.IsZero() && issued.Before(t)
	}

	// Direct invoice properties for convenience
	env["InvoiceID"] = invoice.InvoiceID
	env["InvoiceNo"] = invoice.InvoiceNo
	env["InvoiceType"] = invoice.InvoiceType
	env["TemplateCode"] = invoice.TemplateCode
	env["InvoiceSeri"] = invoice.InvoiceSeri
	env["Currency"] = invoice.Currency
	env["Total"] = invoice.Total.InexactFloat64()
	env["TotalBeforeTax"] = invoice.TotalBeforeTax.InexactFloat64()
	env["TaxAmount"] = invoice.TaxAmount.InexactFloat64()
	env["HasTaxRate"] = invoice.TaxRate.Valid
	env["TaxRate"] = invoice.TaxRate.Decimal.InexactFloat64()
	env["IssueDate"] = issued
	env["CreateTime"] = millisToTime(invoice.CreateTime)
	env["State"] = invoice.State
	env["PaymentStatus"] = invoice.PaymentStatus
	env["PaymentStatusName"] = invoice.PaymentStatusName
	env["PaymentMethod"] = invoice.PaymentMethod
	env["AdjustmentType"] = invoice.AdjustmentType
	env["BuyerName"] = invoice.BuyerName
	env["BuyerTaxCode"] = invoice.BuyerTaxCode
	env["SupplierTaxCode"] = invoice.SupplierTaxCode
	env["TransactionUUID"] = invoice.TransactionUUID
	env["Description"] = ""
	if invoice.Description != nil {
		env["Description"] = *invoice.Description
	}

	return env
}
