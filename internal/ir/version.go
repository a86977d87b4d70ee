package ir

// Version constants for the wire protocol and client.
const (
	// ProtocolVersion is the frame format version understood by this client.
	ProtocolVersion = "1"

	// ClientVersion is the gridsync client version.
	ClientVersion = "0.1.0"
)
