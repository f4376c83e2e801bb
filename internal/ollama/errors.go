package ollama

import (
	"errors"
	"fmt"
)

// ErrInvalidPrompt is returned for parts that cannot appear in their
// message role and for unknown roles.
var ErrInvalidPrompt = errors.New("invalid prompt")

// UnsupportedFunctionalityError reports a prompt construct that has no
// representation in the Ollama chat format.
type UnsupportedFunctionalityError struct {
	Functionality string
}

func (e *UnsupportedFunctionalityError) Error() string {
	return fmt.Sprintf("'%s' functionality not supported.", e.Functionality)
}

func unsupported(format string, args ...any) error {
	return &UnsupportedFunctionalityError{Functionality: fmt.Sprintf(format, args...)}
}

// IsUnsupportedFunctionality reports whether err wraps an
// *UnsupportedFunctionalityError.
func IsUnsupportedFunctionality(err error) bool {
	var target *UnsupportedFunctionalityError
	return errors.As(err, &target)
}
