// Package sinvoice provides a client for the Viettel S-Invoice e-invoice API.
//
// Every operation logs in, sends a single request with the returned bearer token,
// and decodes the response envelope. Invoice documents are passed through as-is:
// any value that encoding/json can marshal (a struct, a map or a json.RawMessage)
// is accepted.
//
// # Usage
//
//	logger := zerolog.New(os.Stderr)
//	client, err := sinvoice.NewClient(sinvoice.Config{
//		Endpoint: "https://api-vinvoice.viettel.vn",
//		Username: "0100109106-503",
//		Password: "secret",
//	}, logger, sinvoice.WithTimeout(30*time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	templates, err := client.GetInvoiceTemplates(ctx, "01GTKT")
//
// # Token reuse
//
// By default each operation performs its own login. Pass WithTokenCache to reuse a
// token until shortly before it expires:
//
//	client, err := sinvoice.NewClient(cfg, logger, sinvoice.WithTokenCache(sinvoice.NewTokenCache()))
//
// # Error Handling
//
// All failures are *Error values tagged with an ErrorKind. The underlying failure,
// usually a *TransportError carrying the HTTP status and body, is kept as Cause:
//
//	resp, err := client.GetInvoiceFile(ctx, params)
//	if errors.Is(err, sinvoice.ErrGetInvoiceFile) {
//		var te *sinvoice.TransportError
//		if errors.As(err, &te) && te.IsUnauthorized() {
//			// credentials rejected
//		}
//	}
//
// Configuration and validation failures (ErrConfiguration, ErrValidation) are
// returned before any request is made.
package sinvoice
