// Package negotiate picks the response representation of a GraphQL result
// from the request's Accept header.
package negotiate

import (
	"sort"
	"strings"

	"github.com/munnerz/goautoneg"
)

// MediaType is a response representation the transport can produce.
type MediaType string

const (
	GraphQLResponseJSON MediaType = "application/graphql-response+json"
	JSON                MediaType = "application/json"
	Multipart           MediaType = "multipart/mixed"
	EventStream         MediaType = "text/event-stream"
)

// IsJSON reports whether m is one of the single-document JSON variants.
func (m MediaType) IsJSON() bool { return m == GraphQLResponseJSON || m == JSON }

// IsStreaming reports whether m carries a sequence of results.
func (m MediaType) IsStreaming() bool { return m == Multipart || m == EventStream }

// Strict reports whether m follows the GraphQL-over-HTTP status rules.
func (m MediaType) Strict() bool { return m == GraphQLResponseJSON }

// wildcards lists the expansion of each accepted wildcard, most preferred
// first.
var wildcards = map[string][]MediaType{
	"*/*":           {JSON, GraphQLResponseJSON, Multipart, EventStream},
	"application/*": {JSON, GraphQLResponseJSON},
	"multipart/*":   {Multipart},
	"text/*":        {EventStream},
}

var supported = map[string]MediaType{
	string(GraphQLResponseJSON): GraphQLResponseJSON,
	string(JSON):                JSON,
	string(Multipart):           Multipart,
	string(EventStream):         EventStream,
}

type clause struct {
	mediaRange string
	q          float64
}

// ParseAccept returns the supported media types acceptable under header,
// most preferred first. Clauses of equal quality keep header order. A
// missing header accepts everything with legacy JSON first.
func ParseAccept(header string) []MediaType {
	header = strings.TrimSpace(header)
	if header == "" {
		header = "*/*"
	}

	var clauses []clause
	for _, part := range strings.Split(header, ",") {
		for _, a := range goautoneg.ParseAccept(part) {
			if a.Q <= 0 {
				continue
			}
			clauses = append(clauses, clause{
				mediaRange: strings.ToLower(a.Type + "/" + a.SubType),
				q:          a.Q,
			})
		}
	}
	sort.SliceStable(clauses, func(i, j int) bool { return clauses[i].q > clauses[j].q })

	seen := map[MediaType]bool{}
	var out []MediaType
	add := func(m MediaType) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, c := range clauses {
		if m, ok := supported[c.mediaRange]; ok {
			add(m)
			continue
		}
		for _, m := range wildcards[c.mediaRange] {
			add(m)
		}
	}
	return out
}

// Shape describes what an operation produced.
type Shape int

const (
	// Single is one result document.
	Single Shape = iota
	// Failure is a single result carrying only errors, produced before
	// execution. It may be delivered through a streaming type.
	Failure
	// Incremental is a sequence of payloads of one query or mutation.
	Incremental
	// Subscription is a sequence of subscription events.
	Subscription
)

// Choose selects the representation for a result of the given shape. ok is
// false when nothing acceptable can carry it, which answers 406.
func Choose(accepted []MediaType, shape Shape) (m MediaType, ok bool) {
	switch shape {
	case Single:
		return first(accepted, MediaType.IsJSON)
	case Failure:
		if m, ok := first(accepted, MediaType.IsJSON); ok {
			return m, true
		}
		return first(accepted, MediaType.IsStreaming)
	case Incremental:
		return first(accepted, MediaType.IsStreaming)
	case Subscription:
		return first(accepted, func(m MediaType) bool { return m == EventStream })
	}
	return "", false
}

func first(list []MediaType, pred func(MediaType) bool) (MediaType, bool) {
	for _, m := range list {
		if pred(m) {
			return m, true
		}
	}
	return "", false
}
