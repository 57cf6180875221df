// Package executor defines the execution engine contract used by the HTTP
// transport and ships a reference engine built on gqlparser.
//
// # Engine
//
// The transport never interprets GraphQL itself. It drives an Engine through
// four calls: Parse, Validate, Execute and Subscribe. Execute and Subscribe
// return an Outcome that carries either a single Result or a Sequence of
// results (subscriptions and @defer incremental delivery).
//
// # Sequences
//
// A Sequence is a pull iterator. Consumers call Next until it reports that it
// is exhausted and must call Close when they stop early, so that upstream
// resources (subscription channels, goroutines) are released deterministically.
//
// # Reference engine
//
// Executor resolves fields through a Runtime, a registry of resolvers keyed
// by "Type.field". Fields without a resolver project the value stored under
// the field name when the source is a map[string]any.
//
// Execution is cooperative with respect to cancellation: before each field is
// resolved the context is checked, and once it is done no further resolver is
// started. Resolvers already running are not interrupted.
//
// Non-Null violations null the nearest nullable ancestor and are reported as
// located errors. Fragments annotated with @defer are executed after the
// initial payload and delivered as incremental results.
package executor
