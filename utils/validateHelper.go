package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateStruct runs the `validate` tags of input and flattens failures into one message
// of the form "field: tag; field: tag".
func ValidateStruct(input any) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	messages := ProcessValidationErrors(validationErrors)
	parts := make([]string, 0, len(messages))
	for _, fe := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), messages[fe.Field()]))
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, fieldError := range validationErrors {
		switch fieldError.Tag() {
		case "required":
			errorResponse[fieldError.Field()] = "is required"
		case "min":
			errorResponse[fieldError.Field()] = "must be at least " + fieldError.Param()
		case "max":
			errorResponse[fieldError.Field()] = "must be at most " + fieldError.Param()
		case "oneof":
			errorResponse[fieldError.Field()] = "must be one of " + fieldError.Param()
		case "required_without":
			errorResponse[fieldError.Field()] = "is required when " + fieldError.Param() + " is empty"
		default:
			errorResponse[fieldError.Field()] = "failed on " + fieldError.Tag()
		}
	}
	return errorResponse
}
