// Package database stores completed runs in a SQLite file
// (modernc.org/sqlite, no cgo).
//
// Each run is kept as JSON next to the columns history listings need: the
// requested and final URL, the fetch time, the overall score and the count
// of audits per rating. Listings therefore never decode the JSON. The file
// is opened in WAL mode with a single connection.
package database
