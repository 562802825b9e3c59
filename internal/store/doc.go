// Package store provides storage and pub/sub functionality for task states.
//
// This package is internal to taskpoll and keeps the latest state of every
// task watched by a Monitor. It implements a publish-subscribe pattern for
// real-time updates to connected API clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [TaskState]: Storage representation of a task's state
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
