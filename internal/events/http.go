package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when an HTTP request is received.
// Context carries the request context.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the handler completes.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// RequestAborted is emitted when the client went away before the response was
// complete. Nothing more is written to it.
type RequestAborted struct {
	Request *http.Request
	Cause   error
}
