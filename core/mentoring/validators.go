package mentoring

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/geoffroyotegbeye/codesens/core"
)

var (
	endAfterStartTag  = "endafterstart"
	endAfterStartText = "end time must be after start time"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(availabilityStructValidation, NewAvailability{})
	core.RegisterCustomTranslation(validate, translator, endAfterStartTag, endAfterStartText)
}

func availabilityStructValidation(sl validator.StructLevel) {
	na, ok := sl.Current().Interface().(NewAvailability)
	if !ok || na.StartTime == "" || na.EndTime == "" {
		return
	}
	if minutesOf(na.EndTime) <= minutesOf(na.StartTime) {
		sl.ReportError(na.EndTime, "end_time", "EndTime", endAfterStartTag, "")
	}
}
