package core

import "errors"

var (
	// ErrNoProvider is returned when no wallet provider can be detected
	ErrNoProvider = errors.New("no wallet provider found")

	// ErrNoAccounts is returned when the wallet reports no authorized accounts
	ErrNoAccounts = errors.New("wallet has no authorized accounts")

	// ErrUserRejected is returned when the user declines a wallet prompt
	ErrUserRejected = errors.New("request rejected by user")

	// ErrSignatureTimeout is returned when a signature request outlives its deadline
	ErrSignatureTimeout = errors.New("signature request timed out")

	// ErrUnsupportedChain is returned when a chain id has no registry entry
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrAuthenticationFailed is returned when the handshake fails after retries
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBackendUnreachable is returned when the backend cannot be reached
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrSessionInvalid is returned when a session fails validation
	ErrSessionInvalid = errors.New("session is invalid")

	// ErrStoreOperationFailed is returned when a session store operation fails
	ErrStoreOperationFailed = errors.New("store operation failed")

	// ErrInvalidAddress is returned when an address is not valid hex
	ErrInvalidAddress = errors.New("invalid ethereum address")
)

// Failure pairs a typed cause with the human-readable text presentation code
// renders. Consumers branch on Cause with errors.Is, never on Message.
type Failure struct {
	Cause   error
	Message string
}

// NewFailure builds a Failure, falling back to the cause's own text when no
// message is supplied.
func NewFailure(cause error, message string) *Failure {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Failure{Cause: cause, Message: message}
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Cause }
