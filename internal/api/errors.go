package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// ErrCredentialMissing is matched by every CredentialMissingError.
var ErrCredentialMissing = errors.New("credential missing")

// CredentialMissingError reports that no provider could resolve a credential
// for the requested model.
type CredentialMissingError struct {
	Provider string
	Model    string
}

func (e *CredentialMissingError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("no credential resolved for %s (model %s)", e.Provider, e.Model)
	}
	return fmt.Sprintf("no credential resolved for %s", e.Provider)
}

// Is lets errors.Is match ErrCredentialMissing.
func (e *CredentialMissingError) Is(target error) bool {
	return target == ErrCredentialMissing
}

// ProviderError is a non-2xx response from a provider.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// TransportError is a network-level failure reaching a provider.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyAnthropic maps SDK errors onto ProviderError or TransportError.
func classifyAnthropic(provider string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: provider, Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return &TransportError{Provider: provider, Err: err}
}

// classifyGemini maps genai errors onto ProviderError or TransportError.
func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: ProviderGemini, Status: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &ProviderError{Provider: ProviderGemini, Status: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return &TransportError{Provider: ProviderGemini, Err: err}
}

// IsRetryable reports whether a failed call might succeed if re-issued by the
// caller. The invoker itself never retries.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status == 429 || pe.Status >= 500
	}
	var te *TransportError
	return errors.As(err, &te)
}
