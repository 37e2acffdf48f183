// Package sqlite persists simulated scans and their detections in SQLite.
//
// Every scan is stored as a header row plus the flat x,y,z point table, in
// scan order, so a stored scan reloads exactly as it was generated. The
// schema is versioned with golang-migrate from migrations embedded in the
// binary.
package sqlite
