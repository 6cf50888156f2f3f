package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidFlowAction = errors.New("invalid flow action")

// ActionValidator checks FlowAction definitions before they are stored so that
// configuration mistakes never reach the dispatcher.
type ActionValidator struct {
	validate *validator.Validate
}

func NewActionValidator() *ActionValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return ChannelType(fl.Field().String()).Valid()
	})
	v.RegisterStructValidation(triggerSpecRules, TriggerSpec{})
	v.RegisterStructValidation(flowActionRules, FlowAction{})
	return &ActionValidator{validate: v}
}

// Validate returns an error wrapping ErrInvalidFlowAction describing every
// failing field.
func (v *ActionValidator) Validate(a *FlowAction) error {
	err := v.validate.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidFlowAction, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidFlowAction, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "channel":
		return fmt.Sprintf("%s %q is not a known channel", field, fe.Value())
	case "on_offset":
		return "trigger with direction on must have dayOffset 0"
	case "custom_key":
		return "customKey is required when referenceEvent is custom"
	case "webhook_url":
		return "webhook destination must be an absolute http(s) URL"
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

func triggerSpecRules(sl validator.StructLevel) {
	spec := sl.Current().Interface().(TriggerSpec)
	if spec.Direction == DirectionOn && spec.DayOffset != 0 {
		sl.ReportError(spec.DayOffset, "DayOffset", "dayOffset", "on_offset", "")
	}
	if spec.ReferenceEvent == ReferenceCustom && strings.TrimSpace(spec.CustomKey) == "" {
		sl.ReportError(spec.CustomKey, "CustomKey", "customKey", "custom_key", "")
	}
}

func flowActionRules(sl validator.StructLevel) {
	a := sl.Current().Interface().(FlowAction)
	if a.ChannelType == ChannelWebhook && a.Destination != "" {
		u, err := url.Parse(a.Destination)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			sl.ReportError(a.Destination, "Destination", "destination", "webhook_url", "")
		}
	}
}
