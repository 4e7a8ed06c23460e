// Package store keeps the most recent detected drops and fans them out to
// subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [DropRecord]: Storage representation of a detected drop
//
// Records are keyed by session and application, so each pair keeps only
// its latest drop. Subscribers receive updates via channels with
// non-blocking sends; slow subscribers miss updates rather than stall a
// poll cycle.
package store
