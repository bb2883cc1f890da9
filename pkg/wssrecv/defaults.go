package wssrecv

const (
	// DefaultURL is the endpoint used when none is configured.
	DefaultURL = "wss://localhost:8000"

	// DefaultTrustAnchor is the certificate path used when none is configured,
	// relative to the working directory.
	DefaultTrustAnchor = "certs/localhost.crt"
)

// DefaultReadLimit is the largest message, in bytes, accepted when no limit
// is configured.
const DefaultReadLimit int64 = 1 << 20
