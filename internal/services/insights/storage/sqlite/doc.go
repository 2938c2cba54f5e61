// Package sqlite provides the result cache persistence adapter backed by
// SQLite.
//
// The cache only ever holds derived provider data; every row can be rebuilt
// by calling the provider again, so expiry is enforced at read time and rows
// are never proactively deleted.
package sqlite
