package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PredictionRequest is the body accepted by both prediction endpoints and
// forwarded upstream as is. Pointers let a missing field be told apart from 0.
type PredictionRequest struct {
	Disease      *string `json:"disease" validate:"required,disease"`
	Year         *int    `json:"year" validate:"required,year_window"`
	Month        *int    `json:"month" validate:"required,min=1,max=12"`
	CurrentCases *int    `json:"current_cases" validate:"required,min=0"`
	ActiveCases  *int    `json:"active_cases" validate:"required,min=0"`
}

type RequestValidator struct {
	validate *validator.Validate
	diseases []string
	minYear  int
	maxYear  int
}

func NewRequestValidator(diseases []string, minYear, maxYear int) *RequestValidator {
	v := &RequestValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		diseases: diseases,
		minYear:  minYear,
		maxYear:  maxYear,
	}

	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.validate.RegisterValidation("disease", func(fl validator.FieldLevel) bool {
		return v.IsAllowedDisease(fl.Field().String())
	})
	v.validate.RegisterValidation("year_window", func(fl validator.FieldLevel) bool {
		year := int(fl.Field().Int())
		return year >= v.minYear && year <= v.maxYear
	})

	return v
}

func (v *RequestValidator) Diseases() []string {
	return v.diseases
}

func (v *RequestValidator) YearBounds() (int, int) {
	return v.minYear, v.maxYear
}

func (v *RequestValidator) IsAllowedDisease(name string) bool {
	for _, d := range v.diseases {
		if d == name {
			return true
		}
	}
	return false
}

// Decode reads and validates a prediction request. Every failure is an
// InvalidRequest error; nothing here touches the network.
func (v *RequestValidator) Decode(body io.Reader) (*PredictionRequest, error) {
	var req PredictionRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			return nil, invalidRequest("The given data was invalid.", map[string]string{field: "type"}, err)
		}
		e := invalidRequest("Invalid request body", nil, err)
		e.Status = http.StatusBadRequest
		return nil, e
	}

	if err := v.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (v *RequestValidator) Validate(req *PredictionRequest) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequest("The given data was invalid.", nil, err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return invalidRequest(v.describe(verrs[0]), fields, err)
}

func (v *RequestValidator) describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "disease":
		return fmt.Sprintf("The disease must be one of: %s.", strings.Join(v.diseases, ", "))
	case "year_window":
		return fmt.Sprintf("The year must be between %d and %d.", v.minYear, v.maxYear)
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s.", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("The %s field is invalid.", fe.Field())
}
