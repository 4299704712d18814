package fitdecode

import "errors"

var (
	// ErrMalformedHeader reports a file preamble that is too short,
	// carries a bad magic tag, or declares an impossible size.
	ErrMalformedHeader = errors.New("fitdecode: malformed file header")

	// ErrUnsupportedVersion reports a protocol major version newer than
	// this decoder understands.
	ErrUnsupportedVersion = errors.New("fitdecode: unsupported protocol version")

	// ErrTruncatedStream reports a record stream that ends before the
	// size declared in the header, when the loss is not recoverable.
	ErrTruncatedStream = errors.New("fitdecode: truncated record stream")
)
