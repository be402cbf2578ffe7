package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/keystone-cm/filedesk/internal/models"
)

// Request payloads. Each is validated before it is sent.

type createFolderRequest struct {
	Name     string         `json:"name" validate:"notblank,max=255"`
	ParentID models.EntryID `json:"parent_id"`
}

type renameRequest struct {
	Name string `json:"name" validate:"notblank,max=255"`
}

type moveRequest struct {
	ParentID models.EntryID `json:"parent_id"`
}

type starRequest struct {
	Starred bool `json:"starred"`
}

type permissionRequest struct {
	FileID     models.EntryID    `json:"file_id" validate:"required"`
	UserID     string            `json:"user_id" validate:"notblank"`
	Permission models.Permission `json:"permission" validate:"permission"`
}

type downloadResponse struct {
	URL string `json:"url" validate:"required,url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		p, ok := fl.Field().Interface().(models.Permission)
		return ok && p.Valid()
	})
	return v
}

// validateRequest runs struct validation and converts the first failure into
// a *ValidationError.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	return &ValidationError{Field: errs[0].Field(), Reason: formatFieldError(errs[0])}
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "must not be empty"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "permission":
		return fmt.Sprintf("unknown permission %v", fe.Value())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
