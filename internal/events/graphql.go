package events

import "time"

// OperationStart is emitted before a GraphQL operation enters the engine.
type OperationStart struct {
	BatchIndex    int
	OperationName string
	OperationType string
}

// OperationFinish is emitted once the engine returned. For streamed
// operations it marks the start of the stream, not its end.
type OperationFinish struct {
	BatchIndex    int
	OperationName string
	OperationType string
	Stream        bool
	Errors        []error
	Duration      time.Duration
}

// ResponseWritten is emitted after a GraphQL response was encoded.
type ResponseWritten struct {
	MediaType string
	Status    int
	Internal  []error
}
