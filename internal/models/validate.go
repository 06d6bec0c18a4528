package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})

	return v
}

// ValidationError carries a client-facing description of why a document was
// rejected. Its message is returned to callers verbatim.
type ValidationError struct {
	Fields map[string]string
	msg    string
}

func (e *ValidationError) Error() string { return e.msg }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Fields: map[string]string{field: message},
		msg:    fmt.Sprintf("validación fallida: %s: %s", field, message),
	}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (p *Product) Validate() error {
	return check(p)
}

func (o *Order) Validate() error {
	return check(o)
}

func check(doc any) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	fields := make(map[string]string, len(ve))
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		path := fieldPath(fe.Namespace())
		msg := messageForTag(fe.Tag(), fe.Param())
		fields[path] = msg
		parts = append(parts, path+": "+msg)
	}

	return &ValidationError{
		Fields: fields,
		msg:    "validación fallida: " + strings.Join(parts, "; "),
	}
}

// fieldPath drops the struct name from a validator namespace, so
// "Order.productos[0].cantidad" becomes "productos.0.cantidad".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "es obligatorio"
	case "gte":
		return "debe ser mayor o igual a " + param
	case "max":
		return "admite como máximo " + param + " caracteres"
	case "status":
		return "estado no válido"
	default:
		return "valor no válido"
	}
}
