// Package errors provides structured error handling for the insights engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Credential errors
	CodeCredentialSharedKeyMissing    Code = "CREDENTIAL_SHARED_KEY_MISSING"
	CodeCredentialTenantKeyMissing    Code = "CREDENTIAL_TENANT_KEY_MISSING"
	CodeCredentialTenantKeyUnverified Code = "CREDENTIAL_TENANT_KEY_UNVERIFIED"

	// Provider errors
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeProviderRateLimited Code = "PROVIDER_RATE_LIMITED"

	// Storage errors
	CodeStorageNotProvisioned Code = "STORAGE_NOT_PROVISIONED"

	// Query errors
	CodeQueryInvalidFeature    Code = "QUERY_INVALID_FEATURE"
	CodeQueryInvalidTargetType Code = "QUERY_INVALID_TARGET_TYPE"
	CodeQueryInvalidVariant    Code = "QUERY_INVALID_VARIANT"
	CodeQueryEmptyTarget       Code = "QUERY_EMPTY_TARGET"
)
