// Package pipeline implements the cache-first resolution of municipalities,
// scores, coordinates, and route legs, and assembles the output table from
// them. Every external lookup goes through a durable cache and is committed
// before the next entity is processed, so an interrupted run resumes by
// skipping whatever was already resolved.
package pipeline
