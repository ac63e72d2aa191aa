package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/KaramelBytes/insightcopilot/internal/app"
)

type AskRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

type ChartRequest struct {
	// Prompt may be empty to reuse the session's last suggestion.
	Prompt string `json:"prompt" validate:"max=2000"`
}

type PreviewQuery struct {
	N int `query:"n" validate:"omitempty,min=1,max=500"`
}

// TextResponse adds rendered markdown to a model answer.
type TextResponse struct {
	*app.TextResult
	HTML string `json:"html,omitempty"`
}

type SessionResponse struct {
	ID      string `json:"id"`
	Dataset string `json:"dataset,omitempty"`
	Rows    int    `json:"rows"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// ValidateRequest checks DTO tags and returns a 400 fiber error listing the failed fields.
func ValidateRequest(req any) error {
	validateOnce.Do(func() { validate = validator.New() })
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), describeTag(fe)))
		}
		return fiber.NewError(fiber.StatusBadRequest, strings.Join(msgs, "; "))
	}
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "too long (max " + fe.Param() + ")"
	case "min":
		return "too small (min " + fe.Param() + ")"
	}
	return "invalid (" + fe.Tag() + ")"
}
