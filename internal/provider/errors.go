package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all provider implementations.
var (
	// ErrRateLimited signals an HTTP 429 from the remote API.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrTimeout signals the request deadline elapsed.
	ErrTimeout = errors.New("request timeout")
	// ErrNoProviders signals a failover chain with no providers configured.
	ErrNoProviders = errors.New("no providers configured")
)

// UnsupportedAssetError is returned when a provider cannot serve an asset.
type UnsupportedAssetError struct {
	Asset string
}

func (e *UnsupportedAssetError) Error() string {
	return fmt.Sprintf("asset not supported: %s", e.Asset)
}

// APIError is a non-success HTTP status from a remote API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// InvalidResponseError is a response that could not be parsed or carried no
// usable prices.
type InvalidResponseError struct {
	Provider string
	Reason   string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response from %s: %s", e.Provider, e.Reason)
}
