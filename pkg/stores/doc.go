// Package stores provides the SQLite-backed log sink and run bookkeeping
// for supervised workflow executions.
package stores
