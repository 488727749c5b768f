package engine

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"daily-tracker/internal/model"
)

// TaskInput is what a user fills in to create a task.
type TaskInput struct {
	Text        string         `json:"text" validate:"required,max=500"`
	Category    model.Category `json:"type" validate:"required,oneof=daily note waitlist testnet"`
	Status      model.Status   `json:"status" validate:"omitempty,oneof=early ongoing ended"`
	Link        string         `json:"link" validate:"looseurl"`
	Website     string         `json:"website" validate:"looseurl"`
	Twitter     string         `json:"twitter" validate:"looseurl"`
	Discord     string         `json:"discord" validate:"looseurl"`
	Telegram    string         `json:"telegram" validate:"looseurl"`
	Description string         `json:"description" validate:"max=4000"`
}

// EditInput replaces the editable fields of a task.
type EditInput struct {
	Text        string       `json:"text" validate:"required,max=500"`
	Status      model.Status `json:"status" validate:"omitempty,oneof=early ongoing ended"`
	Link        string       `json:"link" validate:"looseurl"`
	Website     string       `json:"website" validate:"looseurl"`
	Twitter     string       `json:"twitter" validate:"looseurl"`
	Discord     string       `json:"discord" validate:"looseurl"`
	Telegram    string       `json:"telegram" validate:"looseurl"`
	Description string       `json:"description" validate:"max=4000"`
}

func (in *TaskInput) normalize() {
	in.Text = strings.TrimSpace(in.Text)
	in.Category = model.Category(strings.ToLower(strings.TrimSpace(string(in.Category))))
	in.Status = model.Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	in.Link = strings.TrimSpace(in.Link)
	in.Website = strings.TrimSpace(in.Website)
	in.Twitter = strings.TrimSpace(in.Twitter)
	in.Discord = strings.TrimSpace(in.Discord)
	in.Telegram = strings.TrimSpace(in.Telegram)
	in.Description = strings.TrimSpace(in.Description)
}

func (in *EditInput) normalize() {
	in.Text = strings.TrimSpace(in.Text)
	in.Status = model.Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	in.Link = strings.TrimSpace(in.Link)
	in.Website = strings.TrimSpace(in.Website)
	in.Twitter = strings.TrimSpace(in.Twitter)
	in.Discord = strings.TrimSpace(in.Discord)
	in.Telegram = strings.TrimSpace(in.Telegram)
	in.Description = strings.TrimSpace(in.Description)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("looseurl", looseURL); err != nil {
		panic(err)
	}
	return v
}

// ValidURL reports whether raw is empty or parses as a URL once a missing scheme is
// assumed to be https.
func ValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func looseURL(fl validator.FieldLevel) bool {
	return ValidURL(fl.Field().String())
}

// validateInput runs struct validation and reports every failing field.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "looseurl":
			msgs = append(msgs, fe.Field()+" is not a valid URL")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s is longer than %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
