// Package panel serves the browser dashboard as embedded static assets.
//
// The dashboard is a small single-page app that reads the local API under
// /api/v1 and listens on /api/v1/ws for snapshot and sync status events. The
// assets are compiled into the binary with go:embed, so a panel install is one
// file. During UI work, api.panel_dir points the handler at a directory on
// disk instead.
//
// Unknown paths fall back to index.html so client-side routes such as
// /panel/hubs/abc survive a reload.
package panel
