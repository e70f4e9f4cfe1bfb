// Package inputval provides struct validation using waffle/pantry/validate.
//
// Define an input struct with validate tags and optional label tags, then
// call Validate to get readable messages:
//
//	type CreateInput struct {
//	    Username string `validate:"required,max=100" label:"Username"`
//	    Locale   string `validate:"locale" label:"Locale"`
//	}
//
//	if res := inputval.Validate(in); res.HasErrors() {
//	    return res.Err()
//	}
package inputval

import (
	"errors"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/dalemusser/waffle/pantry/validate"
	"golang.org/x/text/language"
)

// Result holds validation results with user-friendly messages.
type Result struct {
	Errors []FieldError
}

// FieldError represents a validation error for a single field.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// First returns the first error message, or empty string if no errors.
func (r *Result) First() string {
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return ""
}

// All returns all error messages joined with "; ".
func (r *Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when valid, otherwise an error carrying All().
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return errors.New(r.All())
}

var (
	customValidator *validate.Validator
	validatorOnce   sync.Once
)

func getValidator() *validate.Validator {
	validatorOnce.Do(func() {
		customValidator = validate.New(validate.WithStopOnFirstError())

		// Blank values pass the custom rules; pair them with required.
		customValidator.RegisterRuleFunc("schemeid", func(value any) bool {
			s, ok := value.(string)
			return ok && (s == "" || IsValidSchemeID(s))
		}, "schemeid")

		customValidator.RegisterRuleFunc("locale", func(value any) bool {
			s, ok := value.(string)
			return ok && (s == "" || IsValidLocale(s))
		}, "locale")

		customValidator.RegisterRuleFunc("httpurl", func(value any) bool {
			s, ok := value.(string)
			return ok && (s == "" || IsValidHTTPURL(s))
		}, "httpurl")
	})
	return customValidator
}

// Validate validates a struct and returns a Result with user-friendly errors.
//
// Rules from pantry/validate: required, oneof=a b c, min=N, max=N, email.
// Rules registered here: schemeid, locale, httpurl.
func Validate(s any) *Result {
	result := &Result{}

	err := getValidator().Struct(s)
	if err == nil {
		return result
	}

	labels := getFieldLabels(s)

	var errs validate.Errors
	if !errors.As(err, &errs) {
		result.Errors = append(result.Errors, FieldError{Message: err.Error()})
		return result
	}
	for _, e := range errs {
		label := labels[e.Field]
		if label == "" {
			label = e.Field
		}
		result.Errors = append(result.Errors, FieldError{
			Field:   e.Field,
			Label:   label,
			Message: formatMessage(label, e.Rule, e.Param),
		})
	}
	return result
}

// getFieldLabels maps field names (json name when tagged) to label tags.
func getFieldLabels(s any) map[string]string {
	labels := make(map[string]string)

	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return labels
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		label := field.Tag.Get("label")
		if label == "" {
			continue
		}
		labels[field.Name] = label
		if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" && name != "-" {
			labels[name] = label
		}
	}
	return labels
}

func formatMessage(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "schemeid":
		return label + " must be a scheme id (lowercase letters, digits, - or _)."
	case "locale":
		return label + " must be a language tag such as en or en-GB."
	case "httpurl":
		return label + " must be a valid URL starting with http:// or https://."
	default:
		return label + " is invalid."
	}
}

var schemeIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// IsValidSchemeID reports whether s can name a scheme in the auth config.
// Dots are excluded because ids are segments of dotted config keys.
func IsValidSchemeID(s string) bool {
	return schemeIDPattern.MatchString(s)
}

// IsValidLocale reports whether s parses as a BCP 47 language tag.
func IsValidLocale(s string) bool {
	tag, err := language.Parse(strings.TrimSpace(s))
	return err == nil && tag != language.Und
}

// IsValidHTTPURL checks if the given string is a valid http:// or https:// URL.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
