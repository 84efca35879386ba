// Package errors provides structured domain errors with gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup and input errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeOverflow        Code = "OVERFLOW"

	// Evolution errors
	CodeEvolutionDisabled  Code = "EVOLUTION_DISABLED"
	CodeRequirementsNotMet Code = "REQUIREMENTS_NOT_MET"
	CodeNotEligible        Code = "NOT_ELIGIBLE"
	CodeNoEvolutionPath    Code = "NO_EVOLUTION_PATH"
	CodeAlreadyFulfilled   Code = "ALREADY_FULFILLED"
	CodeDuplicateRequest   Code = "DUPLICATE_REQUEST"
	CodeRequestStale       Code = "REQUEST_STALE"

	// Personality errors
	CodeAlreadyInitialized Code = "ALREADY_INITIALIZED"

	// Staking errors
	CodeNotOwner           Code = "NOT_OWNER"
	CodePoolInactive       Code = "POOL_INACTIVE"
	CodeAlreadyStaked      Code = "ALREADY_STAKED"
	CodeNotStaked          Code = "NOT_STAKED"
	CodeNoRewardsAvailable Code = "NO_REWARDS_AVAILABLE"

	// Collaborator errors
	CodeExternalUnavailable Code = "EXTERNAL_UNAVAILABLE"
	CodeInternal            Code = "INTERNAL"
)

// Kind is the coarse failure category a code belongs to.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindUnauthorized        Kind = "Unauthorized"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindPreconditionFailed  Kind = "PreconditionFailed"
	KindAlreadyProcessed    Kind = "AlreadyProcessed"
	KindExternalUnavailable Kind = "ExternalDependencyUnavailable"
	KindInternal            Kind = "Internal"
)

// Kind maps a code to its failure category.
func (c Code) Kind() Kind {
	switch c {
	case CodeNotFound:
		return KindNotFound
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeInvalidArgument, CodeOverflow:
		return KindInvalidArgument
	case CodeEvolutionDisabled,
		CodeRequirementsNotMet,
		CodeNotEligible,
		CodeNoEvolutionPath,
		CodeRequestStale,
		CodeNotOwner,
		CodePoolInactive,
		CodeNotStaked,
		CodeNoRewardsAvailable:
		return KindPreconditionFailed
	case CodeAlreadyFulfilled,
		CodeAlreadyStaked,
		CodeAlreadyInitialized,
		CodeDuplicateRequest:
		return KindAlreadyProcessed
	case CodeExternalUnavailable:
		return KindExternalUnavailable
	default:
		return KindInternal
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c.Kind() {
	case KindNotFound:
		return codes.NotFound
	case KindUnauthorized:
		return codes.PermissionDenied
	case KindInvalidArgument:
		return codes.InvalidArgument
	case KindPreconditionFailed:
		return codes.FailedPrecondition
	case KindAlreadyProcessed:
		return codes.AlreadyExists
	case KindExternalUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
