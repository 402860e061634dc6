// Package scheduling turns recurring schedule slots into concrete publish
// instants. It is pure: callers load slots and reservations from the store,
// build a Catalog and an Occupancy, and ask FindNext for the earliest free
// (slot, date) pair.
//
// All calendar arithmetic happens in the display time zone. Persisted
// instants are UTC.
package scheduling
