package filter

import (
	"github.com/s0up4200/sinvoice/sinvoice"
)

// Filter defines the basic interface for invoice filters
type Filter interface {
	// Evaluate checks if an invoice matches the filter criteria
	Evaluate(invoice sinvoice.InvoiceSummary) bool
}

// CompiledFilter represents a pre-compiled filter ready for evaluation
type CompiledFilter interface {
	Filter

	// Match is Evaluate with the evaluation error surfaced
	Match(invoice sinvoice.InvoiceSummary) (bool, error)

	// Expression returns the original filter expression
	Expression() string
}

// Compiler compiles filter expressions into executable filters
type Compiler interface {
	// Compile parses and compiles a filter expression
	Compile(expression string) (CompiledFilter, error)
}

// CachingCompiler provides caching for compiled filters
type CachingCompiler interface {
	Compiler

	// Clear removes all cached filters
	Clear()

	// Size returns the number of cached filters
	Size() int
}

// Apply returns the invoices matching f, preserving order.
// A nil filter matches everything.
func Apply(f Filter, invoices []sinvoice.InvoiceSummary) []sinvoice.InvoiceSummary {
	if f == nil {
		return invoices
	}

	matches := make([]sinvoice.InvoiceSummary, 0, len(invoices))
	for _, invoice := range invoices {
		if f.Evaluate(invoice) {
			matches = append(matches, invoice)
		}
	}
	return matches
}
