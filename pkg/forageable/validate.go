package forageable

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the notblank rule registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Registration only fails for an empty tag or a nil func.
		_ = validate.RegisterValidation("notblank", validators.NotBlank)
	})
	return validate
}

// IsValidEntry reports whether name and address are both non-blank.
func IsValidEntry(name, address string) bool {
	return strings.TrimSpace(name) != "" && strings.TrimSpace(address) != ""
}

// Validate checks a record against its field rules. The returned error is
// classified as a validation error and matches ErrInvalidEntry.
func Validate(f Forageable) error {
	err := Validator().Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError("invalid forageable", err).WithID(f.ID)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}

	return NewValidationError(
		fmt.Sprintf("blank %s", strings.Join(fields, ", ")),
		ErrInvalidEntry,
	).WithID(f.ID)
}
