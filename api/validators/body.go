package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
)

// CalendarDateLayout is the wire format for due dates.
const CalendarDateLayout = "2006-01-02"

var skuRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	must(v.RegisterValidation("qty_positive", func(fl validator.FieldLevel) bool {
		q, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && q.IsPositive()
	}))
	must(v.RegisterValidation("qty_nonnegative", func(fl validator.FieldLevel) bool {
		q, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && !q.IsNegative()
	}))
	must(v.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(CalendarDateLayout, fl.Field().String())
		return err == nil
	}))
	must(v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuRe.MatchString(fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// DecodeJSONBody decodes a required JSON body and validates it.
func DecodeJSONBody(r *http.Request, dest any) error {
	return decode(r, dest, false)
}

// DecodeOptionalJSONBody accepts an empty body and validates dest as decoded so far.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	return decode(r, dest, true)
}

func decode(r *http.Request, dest any, optional bool) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
				WithDetails(map[string]any{"error": err.Error()})
		}
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *pkgerrors.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the root struct name: "lines[0].quantity".
func fieldPath(fe validator.FieldError) string {
	_, path, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	return path
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "uuid":
		return "must be a valid uuid"
	case "qty_positive":
		return "must be a positive quantity"
	case "qty_nonnegative":
		return "must not be negative"
	case "calendar_date":
		return "must be a date in YYYY-MM-DD form"
	case "sku":
		return "may contain only letters, digits, dot, dash and underscore"
	default:
		return "is invalid"
	}
}
