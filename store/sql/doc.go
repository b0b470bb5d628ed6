// Package sqlstore provides the bun-backed persistence layer: event
// admission, action execution rows, provider policy, action bindings, and
// rate counters, for Postgres and SQLite.
package sqlstore
