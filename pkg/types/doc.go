// Package types defines the data model shared by every layer of the memory
// engine: graph nodes and relationships with multi-valued properties,
// triplet collections with key-based deduplication, extracted facts, and
// the system-node variants that form the temporal skeleton.
//
// Identity is always the primary-key tuple. Two Node values with the same
// (label, name) are the same entity regardless of their properties; two
// Relationship values with the same (type, start, end, start label,
// end label) are the same edge. Deduplication throughout the engine relies
// on this convention.
package types
