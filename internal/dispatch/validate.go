package dispatch

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"git.home.luguber.info/inful/previewer/internal/build"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// requestValidator wraps go-playground/validator with the "slug" rule.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// RegisterValidation only fails for empty tags or builtin clashes.
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return ValidSlug(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// check returns an InvalidRequest error naming the first failing field.
func (v *requestValidator) check(req build.BuildRequest) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid build request").Build()
	}
	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "slug":
		msg = fe.Field() + " must be a valid DNS label (lowercase letters, digits and dashes, at most 63 characters)"
	default:
		msg = fe.Field() + " failed on '" + fe.Tag() + "' validation"
	}
	return ferrors.ValidationError(msg).WithContext("field", fe.Field()).Build()
}
