package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

type validEnum interface {
	Valid() bool
}

func newValidator() *validator.Validate {
	v := validator.New()
	// enum accepts any closed enumeration exposing Valid()
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		if e, ok := fl.Field().Interface().(validEnum); ok {
			return e.Valid()
		}
		return false
	})
	return v
}

func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	// Format validation errors
	var messages []string
	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, field+" must be at least "+param)
		case "max":
			messages = append(messages, field+" must be at most "+param)
		case "email":
			messages = append(messages, field+" must be a valid email")
		case "len":
			messages = append(messages, field+" must be exactly "+param+" characters")
		case "enum", "oneof":
			messages = append(messages, field+" has an unsupported value")
		default:
			messages = append(messages, field+" is invalid")
		}
	}

	return errors.New(strings.Join(messages, ", "))
}

var (
	emailPattern         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	scriptSchemePattern  = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerPattern  = regexp.MustCompile(`(?i)on\w+=`)
	maxSanitizedTextSize = 1000
)

// IsValidEmail applies the same loose check the CSV import uses
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SanitizeString strips markup and script vectors from free text and caps its length
func SanitizeString(input string) string {
	out := strings.TrimSpace(input)
	out = strings.NewReplacer("<", "", ">", "").Replace(out)
	out = scriptSchemePattern.ReplaceAllString(out, "")
	out = eventHandlerPattern.ReplaceAllString(out, "")
	if r := []rune(out); len(r) > maxSanitizedTextSize {
		out = string(r[:maxSanitizedTextSize])
	}
	return out
}
