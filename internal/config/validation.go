package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and returns a classified validation error
// listing every failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid configuration").Build()
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return ferrors.ValidationError("invalid configuration: " + strings.Join(fields, ", ")).
		WithContext("fields", fields).
		Build()
}
