package capability

import "errors"

// Sentinel errors for capability routing.
var (
	// ErrTransport indicates the server process or connection failed.
	// The server is marked down; recovery requires an explicit restart.
	ErrTransport = errors.New("capability: transport error")

	// ErrProtocol indicates the server sent a malformed or unexpected
	// response. The call fails; the connection stays up.
	ErrProtocol = errors.New("capability: protocol error")

	// ErrServerDown indicates the server was marked down by an earlier
	// failure and has not been restarted.
	ErrServerDown = errors.New("capability: server down, restart required")

	// ErrUnknownServer indicates no server with that name is configured.
	ErrUnknownServer = errors.New("capability: unknown server")

	// ErrServerDisabled indicates the server is configured but disabled.
	ErrServerDisabled = errors.New("capability: server disabled")

	// ErrNotRemote indicates a call name without a server prefix reached
	// the remote router.
	ErrNotRemote = errors.New("capability: not a remote tool name")
)
