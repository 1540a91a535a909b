// Package driver abstracts the property-graph store behind the GraphStore
// interface and provides the Neo4j implementation, a circuit-breaker
// wrapper, and an in-memory store used by tests and local development.
//
// The store contract follows merge-not-overwrite semantics: node and
// relationship properties are multi-valued lists that only grow by set
// union, and "not found" on reads is a normal nil result, never an error.
package driver
