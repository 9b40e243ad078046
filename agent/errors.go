package agent

import (
	"errors"
	"fmt"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

// Translation keys of user-facing errors.
const (
	ErrorKeyYandexCloud  = "yandex_cloud_error"
	ErrorKeyEthicsFilter = "ethics_filter"
)

// ProviderError is the single user-facing error of a failed round.
type ProviderError struct {
	Key     string
	Details string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("error talking to Yandex Cloud: %s", e.Details)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// escalate wraps transport failures and timeouts; everything else is returned
// unchanged.
func escalate(err error) error {
	var te *llm.TransportError
	switch {
	case errors.As(err, &te):
		details := te.Details
		if details == "" {
			details = te.Error()
		}
		return &ProviderError{Key: ErrorKeyYandexCloud, Details: details, Err: err}
	case errors.Is(err, llm.ErrTimeout):
		return &ProviderError{Key: ErrorKeyYandexCloud, Details: "operation timed out", Err: err}
	}
	return err
}

// TranslationKey maps an error to the key the host shows to the user, or "".
func TranslationKey(err error) string {
	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		return pe.Key
	case errors.Is(err, llm.ErrEthicsFilter):
		return ErrorKeyEthicsFilter
	}
	return ""
}
