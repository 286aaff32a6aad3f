package stats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInsufficientSamples means fewer values than a computation's minimum sample size.
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrInvalidConfiguration means the caller supplied options that can never be computed.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrSingularMatrix means the regression normal matrix is not invertible within pivot tolerance.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrEmptyInput means there are no records (or no values) to analyze.
	ErrEmptyInput = errors.New("empty input")
)

var optionValidate = validator.New()

// validateOptions runs struct-tag validation and maps failures onto ErrInvalidConfiguration.
func validateOptions(v any) error {
	err := optionValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(msgs, "; "))
}
