package validation

import (
	"encoding/json"
	"fmt"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. Custom struct-level rules live here so
// handlers only ever see v.Struct failures.
func New() *validatorv10.Validate {
	return validatorv10.New()
}

// DecodeAndValidate decodes the JSON request body into out and validates it.
// The returned error is suitable for a 400 response body.
func DecodeAndValidate(r *http.Request, out interface{}, v *validatorv10.Validate) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := v.Struct(out); err != nil {
		return fmt.Errorf("validation failed: %v", ErrorsToMap(err))
	}
	return nil
}

// ErrorsToMap flattens validator errors into field -> message pairs.
func ErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
