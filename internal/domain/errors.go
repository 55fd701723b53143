package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrPriceNotFound      = errors.New("price not found")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrUnsupportedAsset   = errors.New("unsupported asset")
	ErrThrottled          = errors.New("throttled by provider")
	ErrMissingCredentials = errors.New("missing provider credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// IsCleanMiss reports whether err is an answer from a provider rather than a
// failure of it: nothing priced, nothing mapped, nothing to retry.
func IsCleanMiss(err error) bool {
	return errors.Is(err, ErrPriceNotFound) ||
		errors.Is(err, ErrSymbolNotFound) ||
		errors.Is(err, ErrUnsupportedAsset)
}
