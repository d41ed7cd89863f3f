package protocol

import "errors"

// Every codec failure wraps one of these two sentinels, so the connection
// handler can treat read-side and write-side faults under a single
// fatal-connection policy while errors.Is still tells them apart.
var (
	ErrReadFailure  = errors.New("protocol: read failure")
	ErrWriteFailure = errors.New("protocol: write failure")
)
