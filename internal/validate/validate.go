// Package validate checks raw form input before it reaches the repository.
package validate

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const birthDateLayout = "2006-01-02"

// Result is the outcome shown next to the form.
type Result struct {
	OK              bool     `json:"ok"`
	Errors          []string `json:"errors"`
	InvalidFieldIDs []string `json:"invalidFieldIds"`
}

// Error carries a failed Result through error returns.
type Error struct {
	Result
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Fields is the trimmed form content.
type Fields struct {
	Name       string `form:"name" validate:"required,min=2"`
	Gender     string `form:"gender" validate:"omitempty,oneof=male female other"`
	BirthDate  string `form:"birthDate" validate:"omitempty,birthdate"`
	Address    string `form:"address" validate:"max=200"`
	SocialLink string `form:"socialLink" validate:"omitempty,weblink"`
	Phone      string `form:"phone" validate:"required,phonedigits"`
	Subject    string `form:"subject" validate:"required"`
}

type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	val := &Validator{v: validator.New(), now: now}
	val.v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("form")
	})
	_ = val.v.RegisterValidation("phonedigits", func(fl validator.FieldLevel) bool {
		return validPhone(fl.Field().String())
	})
	_ = val.v.RegisterValidation("birthdate", func(fl validator.FieldLevel) bool {
		parsed, err := time.Parse(birthDateLayout, fl.Field().String())
		if err != nil {
			return false
		}
		return !parsed.After(val.now())
	})
	_ = val.v.RegisterValidation("weblink", func(fl validator.FieldLevel) bool {
		parsed, err := url.ParseRequestURI(fl.Field().String())
		if err != nil {
			return false
		}
		return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
	})
	return val
}

// Validate reports whether fields form an acceptable submission.
func (val *Validator) Validate(fields map[string]string) Result {
	_, result := val.check(fields)
	return result
}

// Check returns the cleaned fields, or an *Error when they are rejected.
func (val *Validator) Check(fields map[string]string) (Fields, error) {
	cleaned, result := val.check(fields)
	if !result.OK {
		return Fields{}, &Error{Result: result}
	}
	return cleaned, nil
}

func (val *Validator) check(fields map[string]string) (Fields, Result) {
	cleaned := Fields{
		Name:       strings.TrimSpace(fields["name"]),
		Gender:     strings.ToLower(strings.TrimSpace(fields["gender"])),
		BirthDate:  strings.TrimSpace(fields["birthDate"]),
		Address:    strings.TrimSpace(fields["address"]),
		SocialLink: strings.TrimSpace(fields["socialLink"]),
		Phone:      strings.TrimSpace(fields["phone"]),
		Subject:    strings.TrimSpace(fields["subject"]),
	}

	result := Result{OK: true, Errors: []string{}, InvalidFieldIDs: []string{}}
	err := val.v.Struct(cleaned)
	if err == nil {
		return cleaned, result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.OK = false
		result.Errors = append(result.Errors, "The form could not be checked.")
		return cleaned, result
	}

	result.OK = false
	seen := make(map[string]bool)
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, message(fe))
		if !seen[fe.Field()] {
			seen[fe.Field()] = true
			result.InvalidFieldIDs = append(result.InvalidFieldIDs, fe.Field())
		}
	}
	return cleaned, result
}

func message(fe validator.FieldError) string {
	switch fe.Field() + ":" + fe.Tag() {
	case "name:required":
		return "Name is required."
	case "name:min":
		return "Name must be at least 2 characters."
	case "gender:oneof":
		return "Gender must be male, female or other."
	case "birthDate:birthdate":
		return "Birth date must be a past date in YYYY-MM-DD format."
	case "address:max":
		return "Address must be at most 200 characters."
	case "socialLink:weblink":
		return "Social link must be an http(s) URL."
	case "phone:required":
		return "Phone number is required."
	case "phone:phonedigits":
		return "Phone number must contain 9 to 15 digits."
	case "subject:required":
		return "Subject is required."
	default:
		return fe.Field() + " is invalid."
	}
}

// validPhone accepts 9 to 15 digits separated by spaces, dashes, dots or
// parentheses, with an optional leading plus sign.
func validPhone(raw string) bool {
	raw = strings.TrimPrefix(raw, "+")
	digits := 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 9 && digits <= 15
}
