// Package httpx holds request parsing helpers and the response envelopes
// shared by every handler.
package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParsePage reads ?page and ?limit, clamping to sane bounds.
func ParsePage(c *fiber.Ctx) Page {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", DefaultLimit)
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

type Sort struct {
	Field string
	Desc  bool
}

// ParseSort accepts ?sort=-field or ?sort=field&order=desc. Fields outside
// allowed fall back to def.
func ParseSort(c *fiber.Ctx, allowed []string, def Sort) Sort {
	raw := strings.TrimSpace(c.Query("sort"))
	if raw == "" {
		return def
	}
	s := Sort{Field: raw}
	if strings.HasPrefix(raw, "-") {
		s = Sort{Field: raw[1:], Desc: true}
	} else if strings.EqualFold(c.Query("order"), "desc") {
		s.Desc = true
	}
	for _, a := range allowed {
		if a == s.Field {
			return s
		}
	}
	return def
}

// ParseFilters returns the non-empty query values whose keys are in allowed.
func ParseFilters(c *fiber.Ctx, allowed []string) map[string]string {
	filters := make(map[string]string)
	for _, key := range allowed {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			filters[key] = v
		}
	}
	return filters
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Bind parses the request body into dst and validates it. Validation
// failures come back as a 422 apperr with one entry per field.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.BadRequest("Invalid request body").Wrap(err)
	}
	return Validate(dst)
}

func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.BadRequest("Invalid request body").Wrap(err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid", "uuid4":
		return fe.Field() + " must be a valid UUID"
	case "url":
		return fe.Field() + " must be a valid URL"
	}
	return fe.Field() + " is invalid"
}

// ParamUUID parses the named route param as a UUID.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest(fmt.Sprintf("Invalid %s", name)).Wrap(err)
	}
	return id, nil
}
