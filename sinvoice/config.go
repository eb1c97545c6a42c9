package sinvoice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultEndpoint is used when Config.Endpoint is empty
const DefaultEndpoint = "https://api-vinvoice.viettel.vn"

// endpointPattern accepts an optional scheme, a required host with optional port,
// and optional path segments.
var endpointPattern = regexp.MustCompile(
	`^(?:[A-Za-z][A-Za-z0-9+.-]*://)?` +
		`(?:[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)*` +
		`(?::[0-9]{1,5})?` +
		`(?:/[^\s?#]*)?$`,
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		return endpointPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Config holds the credentials and endpoint of a Client
type Config struct {
	// Endpoint is the service base URL. DefaultEndpoint is used when empty.
	Endpoint string `validate:"omitempty,endpoint"`
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// Validate checks the configuration without touching the network
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return newConfigurationError("invalid configuration", err)
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return newConfigurationError(fmt.Sprintf("%s is required", field), err)
	case "endpoint":
		return newConfigurationError(fmt.Sprintf("%s is not a valid URL: %q", field, fe.Value()), err)
	default:
		return newConfigurationError(fmt.Sprintf("%s failed %s validation", field, fe.Tag()), err)
	}
}

// baseURL returns the normalized endpoint: https scheme when none was given, no trailing slash
func (c Config) baseURL() string {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}
