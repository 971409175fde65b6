package catalog

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/geoffroyotegbeye/codesens/core"
)

const DefaultCurrency = "EUR"

var (
	levelTag  = "level"
	levelText = "must be one of beginner, intermediate or advanced"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(levelTag, levelValidation)
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)
}

func levelValidation(fl validator.FieldLevel) bool {
	level := fl.Field().String()
	for _, lvl := range Levels {
		if level == lvl {
			return true
		}
	}
	return false
}
