package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// fieldMessages renders a failed tag; %[1]s is the field, %[2]s the tag param.
var fieldMessages = map[string]string{
	"required": "%[1]s is required",
	"max":      "%[1]s must be at most %[2]s",
	"min":      "%[1]s must be at least %[2]s",
	"gte":      "%[1]s must be >= %[2]s",
	"lte":      "%[1]s must be <= %[2]s",
	"oneof":    "%[1]s must be one of: %[2]s",
}

// ReadAndValidateRequest binds path and query values into req, fills struct
// defaults for zero fields and validates. It returns nil when req is usable.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
		}
		return []ValidationError{{Code: "ERR_BIND", Message: err.Error()}}
	}
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fes))
	for _, fe := range fes {
		msg := fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
		if tmpl, ok := fieldMessages[fe.Tag()]; ok {
			msg = fmt.Sprintf(tmpl, fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
		}
		out = append(out, ValidationError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: msg,
		})
	}
	return out
}
