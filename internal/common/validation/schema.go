// internal/common/validation/schema.go
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// applicationSchema validates the visa application submission payload. Date
// ordering (end after start) is a business rule checked by the handler, not
// here.
const applicationSchema = `{
  "type": "object",
  "required": ["userId", "personalInfo"],
  "properties": {
    "userId": {"type": "string", "minLength": 1},
    "personalInfo": {
      "type": "object",
      "required": ["fullName", "email"],
      "properties": {
        "fullName": {"type": "string", "minLength": 1},
        "email": {"type": "string", "format": "email"},
        "phone": {"type": "string"},
        "passportNumber": {"type": "string"},
        "nationality": {"type": "string"}
      }
    },
    "addressInfo": {
      "type": "object",
      "properties": {
        "street": {"type": "string"},
        "city": {"type": "string"},
        "state": {"type": "string"},
        "zipCode": {"type": "string"},
        "country": {"type": "string"}
      }
    },
    "employmentInfo": {
      "type": "object",
      "properties": {
        "employer": {"type": "string"},
        "jobTitle": {"type": "string"},
        "lcaNumber": {"type": "string"},
        "annualWage": {"type": "integer", "minimum": 0},
        "workLocation": {"type": "string"}
      }
    },
    "visaStartDate": {"type": "string", "format": "date"},
    "visaEndDate": {"type": "string", "format": "date"}
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var applicationLoader = gojsonschema.NewStringLoader(applicationSchema)

// ValidateApplication checks a raw submission payload against the application
// schema and returns per-field errors.
func ValidateApplication(payload []byte) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(applicationLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return out, nil
}
