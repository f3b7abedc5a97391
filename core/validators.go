package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	usernameTag  = "alphanum_"
	usernameText = "only alphanumeric characters and underscores are allowed"

	requiredText = "this field is required"
)

var usernameRegex = regexp.MustCompile(`^[\w\s]+$`)

// InitValidators wires the shared validator: english translations, JSON field
// names in error messages, and the custom username rule. Domain packages
// register their own tags on top of this.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(jsonTagName)

	_ = validate.RegisterValidation(usernameTag, func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	RegisterCustomTranslation(validate, translator, usernameTag, usernameText)

	RegisterCustomTranslation(validate, translator, "required", requiredText, true)
	RegisterCustomTranslation(validate, translator, "required_with", requiredText, true)
}

// jsonTagName surfaces the JSON name of a field in validation errors rather
// than the Go struct name.
func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterCustomTranslation maps a validation tag to a fixed message.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
