package goAuthClient

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	passwordPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]`)
	digitsPattern   = regexp.MustCompile(`^\d+$`)
)

const mobileLength = 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("accountemail", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.Count(s, "@") == 1 && emailPattern.MatchString(s)
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) == mobileLength && digitsPattern.MatchString(s)
	})
	_ = v.RegisterValidation("passwordchars", func(fl validator.FieldLevel) bool {
		return passwordPattern.MatchString(fl.Field().String())
	})
	return v
}

var fieldMessages = map[string]string{
	"full_name.required":        "Full name is required",
	"full_name.min":             "Full name must be at least 2 characters",
	"username.required":         "Username is required",
	"username.min":              "Username must be at least 3 characters",
	"email.required":            "Email is required",
	"email.min":                 "Email is too short",
	"email.accountemail":        "Enter a valid email address",
	"mobile.required":           "Mobile number is required",
	"password.required":         "Password is required",
	"password.min":              "Password must be at least 8 characters long",
	"password.passwordchars":    "Password must contain at least one letter, digit, or special character",
	"confirm_password.required": "Please confirm your password",
	"confirm_password.eqfield":  "Passwords do not match",
	"identifier.required":       "Username, email, or mobile number is required",
}

// ValidateRegister checks a registration form with the same rules the API
// enforces. It returns nil or a *ValidationError with one message per field.
func ValidateRegister(req RegisterRequest) error {
	return check(normalizeRegister(req))
}

// ValidateLogin checks that both login fields are present.
func ValidateLogin(req LoginRequest) error {
	req.Identifier = strings.TrimSpace(req.Identifier)
	if strings.TrimSpace(req.Password) == "" {
		req.Password = ""
	}
	return check(req)
}

func normalizeRegister(req RegisterRequest) RegisterRequest {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	// Whitespace-only passwords count as missing; otherwise they are sent as typed.
	if strings.TrimSpace(req.Password) == "" {
		req.Password = ""
	}
	if strings.TrimSpace(req.ConfirmPassword) == "" {
		req.ConfirmPassword = ""
	}
	return req
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Field() == "mobile" && fe.Tag() == "mobile" {
		s, _ := fe.Value().(string)
		switch {
		case len(s) < mobileLength:
			return "Mobile number must be at least 10 digits"
		case !digitsPattern.MatchString(s):
			return "Mobile number must contain only digits"
		default:
			return "Mobile number must be exactly 10 digits"
		}
	}
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fe.Field() + " is invalid"
}
