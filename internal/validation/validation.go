// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalid является общим признаком ошибки валидации, проверяется через errors.Is.
var ErrInvalid = errors.New("validation failed")

// Error описывает некорректное поле запроса.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalid, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalid, e.Field, e.Reason)
}

// Unwrap позволяет сопоставлять как ErrInvalid, так и исходную причину.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalid, e.Err}
	}
	return []error{ErrInvalid}
}

// New создаёт ошибку валидации поля.
func New(field, reason string) error {
	return &Error{Field: field, Reason: reason}
}

// Wrap создаёт ошибку валидации поля с доменной причиной.
func Wrap(field string, cause error) error {
	return &Error{Field: field, Reason: cause.Error(), Err: cause}
}

var validate = newValidator()

// newValidator называет поля в ошибках по json-тегам, как их видит клиент API.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct проверяет структуру по тегам validate и возвращает первое нарушение.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	fe := verrs[0]
	return &Error{Field: fieldName(fe.Namespace()), Reason: reason(fe)}
}

// fieldName отбрасывает имя корневой структуры: "SaleRequest.items[0].product_id" -> "items[0].product_id".
func fieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " element(s)"
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// MaxAmount ограничивает суммы значениями, которые помещаются в int64 в сотых долях.
var MaxAmount = decimal.New(math.MaxInt64, -2)

// Amount проверяет денежное значение: не отрицательное, не больше двух знаков после запятой
// и не больше MaxAmount.
func Amount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return New(field, "must not be negative")
	}
	if !d.Equal(d.Round(2)) {
		return New(field, "must have at most 2 decimal places")
	}
	if d.GreaterThan(MaxAmount) {
		return New(field, "must be at most "+MaxAmount.String())
	}
	return nil
}
