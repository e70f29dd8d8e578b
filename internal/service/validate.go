package service

import (
	"errors"
	"reflect"
	"strings"

	"dugtong/internal/domain"

	"github.com/go-playground/validator/v10"
)

// newValidator registers the registry's custom tags: bloodtype and municipality.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseBloodType(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("municipality", func(fl validator.FieldLevel) bool {
		return domain.IsValidMunicipality(fl.Field().String())
	})
	return v
}

// validateStruct converts validator errors into *ValidationError keyed by JSON field name.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
