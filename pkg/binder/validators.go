package binder

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shishobooks/stacks/pkg/models"
)

const (
	contentStatus = "content_status"
	imageStatus   = "image_status"
	attributeType = "attribute_type"
	attrFilter    = "attr_filter"
	errorType     = "error_type"
)

func contentStatusValidator(fl validator.FieldLevel) bool {
	return oneOf(models.ContentStatuses, fl.Field().String())
}

func imageStatusValidator(fl validator.FieldLevel) bool {
	return oneOf(models.ImageStatuses, fl.Field().String())
}

func attributeTypeValidator(fl validator.FieldLevel) bool {
	return models.IsAttributeType(fl.Field().String())
}

func errorTypeValidator(fl validator.FieldLevel) bool {
	return oneOf(models.ErrorTypes, fl.Field().String())
}

// attrFilterValidator accepts "type:name" where type is a known attribute
// type and name isn't empty.
func attrFilterValidator(fl validator.FieldLevel) bool {
	attrType, name, ok := strings.Cut(fl.Field().String(), ":")
	return ok && models.IsAttributeType(attrType) && strings.TrimSpace(name) != ""
}

func oneOf(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
