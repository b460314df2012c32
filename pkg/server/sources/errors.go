// Package sources provides upstream provider interfaces, fragment types and shared HTTP plumbing.
package sources

import "errors"

var (
	// ErrRateLimited indicates that the upstream rejected the request with a rate limit.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrTimeout indicates that the upstream did not answer in time.
	ErrTimeout = errors.New("upstream timeout")
	// ErrBadResponse indicates a non-2xx status or an undecodable or incomplete body.
	ErrBadResponse = errors.New("upstream bad response")
	// ErrUnreachable indicates a transport failure or a missing local source.
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrMissingField indicates that a required response field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrEmptyResult indicates that the upstream returned no usable items.
	ErrEmptyResult = errors.New("empty result")
	// ErrUnknownAsset indicates that the provider has no mapping for an asset.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNoArchive indicates that no archived result file could be found.
	ErrNoArchive = errors.New("no archive file found")
	// ErrInvalidConfig indicates that the provider configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoPairsConfigured indicates that no pairs are configured.
	ErrNoPairsConfigured = errors.New("no pairs configured")
	// ErrInvalidAsset indicates that an asset symbol is malformed.
	ErrInvalidAsset = errors.New("invalid asset symbol")
	// ErrUnknownProvider indicates that no factory is registered for a provider key.
	ErrUnknownProvider = errors.New("unknown provider")
)
