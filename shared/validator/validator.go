package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationError reports every field that failed validation, keyed by the
// field's JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}

	return strings.Join(msgs, "; ")
}

// Validator validates request payloads using struct tags and renders English
// messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New creates a Validator with English translations registered.
func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	english := en.New()
	uni := ut.New(english, english)

	translator, ok := uni.GetTranslator("en")
	if !ok {
		return nil, errors.New("english translator not found")
	}

	if err := entranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}

	return &Validator{validate: validate, translator: translator}, nil
}

// Struct validates s. Field failures are returned as *ValidationError.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Translate(v.translator)
	}

	return &ValidationError{Fields: fields}
}
