package marketdata

import (
	"errors"
	"strings"
)

// ErrUnsupported is returned by a Provider method for a capability it
// doesn't implement (e.g. a fundamentals-only provider asked for bars).
var ErrUnsupported = errors.New("capability not supported by this provider")

// ProviderError is raised when every configured provider failed for an
// operation; it carries the concatenated per-provider reasons.
type ProviderError struct {
	Operation string
	Reasons   []string
}

func (e *ProviderError) Error() string {
	return "all providers failed for " + e.Operation + ": " + strings.Join(e.Reasons, "; ")
}

func newProviderError(operation string, reasons []string) *ProviderError {
	return &ProviderError{Operation: operation, Reasons: reasons}
}
