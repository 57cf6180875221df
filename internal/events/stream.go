package events

import "time"

// StreamReserved is emitted when a client opens a multiplexed event stream.
type StreamReserved struct {
	Token string
}

// StreamRejected is emitted when a token is already held by another stream.
type StreamRejected struct {
	Token string
}

// StreamClosed is emitted when a multiplexed stream ends.
type StreamClosed struct {
	Token    string
	Duration time.Duration
}
