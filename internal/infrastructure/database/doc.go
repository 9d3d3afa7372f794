// Package database provides the panel's local SQLite store.
//
// The panel keeps almost nothing on disk: device, hub and area state all live on
// the backend. What does persist locally (the access token and a few settings)
// goes through this package so it survives restarts.
//
// Migrations are plain .up.sql files embedded by the top-level migrations package
// and applied in filename order, each in its own transaction.
package database
