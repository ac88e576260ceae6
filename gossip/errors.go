package gossip

import (
	"google.golang.org/grpc/codes"

	"github.com/maxpoletaev/cyclon/internal/baseerror"
	"github.com/maxpoletaev/cyclon/internal/grpcutil"
)

// ErrUnknownOpcode is returned to a peer that sends a frame with an
// opcode this server does not recognize.
var ErrUnknownOpcode = baseerror.New("gossip: unknown opcode")

// ErrNotRunning is returned by Service methods that require the service
// to have been started.
var ErrNotRunning = baseerror.New("gossip: service is not running")

// ErrAlreadyRunning is returned by Start if the service has already
// been started.
var ErrAlreadyRunning = baseerror.New("gossip: service is already running")

// ErrNotEntered is returned by StartClient when the service has not
// successfully called Enter yet, so there is no point running the
// background exchange loop against an unbootstrapped view.
var ErrNotEntered = baseerror.New("gossip: service has not entered the overlay yet")

// IsRetryable reports whether err (as returned by GossipClient) reflects
// a transient condition worth retrying on the next gossip round, rather
// than a malformed request that will keep failing.
func IsRetryable(err error) bool {
	switch grpcutil.ErrorCode(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unknown:
		return true
	default:
		return false
	}
}
