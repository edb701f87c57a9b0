// Package storage owns database connectivity and schema management for the
// postgres and sqlite backends.
//
// Domain packages own their tables and queries. This package only opens
// handles, applies the embedded migrations and classifies driver errors.
package storage
