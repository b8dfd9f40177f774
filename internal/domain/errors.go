package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Error kinds. Every error produced by the pipelines wraps one of these.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrProvider            = errors.New("provider error")
	ErrProviderUnreachable = fmt.Errorf("%w: provider unreachable", ErrProvider)
	ErrStorage             = errors.New("storage error")
	ErrIO                  = errors.New("io error")
)

// Kind is the coarse classification of an error used for reporting.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindProvider
	KindStorage
	KindIO
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindProvider:
		return "provider"
	case KindStorage:
		return "storage"
	case KindIO:
		return "io"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an error onto its Kind. Storage and IO wrappers win over
// a provider error they enclose.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, ErrProvider):
		return KindProvider
	default:
		return KindUnknown
	}
}

// ConfigError wraps a message as a configuration error.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StorageError wraps err as a storage error.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// TransportError classifies an error returned by an HTTP client call.
// Connection level failures are unreachable; cancellation passes through.
func TransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w: %w", provider, ErrProviderUnreachable, err)
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrProvider, err)
}

// StatusError classifies a non-success HTTP status. Authentication and
// missing endpoint/model responses mean the provider cannot serve any call.
func StatusError(provider string, status int, detail string) error {
	msg := fmt.Sprintf("%s returned %d %s", provider, status, http.StatusText(status))
	if detail != "" {
		msg += ": " + detail
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrProviderUnreachable, msg)
	default:
		return fmt.Errorf("%w: %s", ErrProvider, msg)
	}
}
