// Package database provides SQLite-based run history for clsprep.
//
// Every invocation of the driver is stored as a row in the runs table and
// every dataset it started as a row in dataset_runs. The history is only a
// record: the pipeline never reads it back to decide what to do.
//
// The database is a single file, clsprep.db, opened with the CGO-free
// modernc.org/sqlite driver.
package database
