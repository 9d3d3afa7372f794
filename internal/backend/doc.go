// Package backend is the REST client for the remote smart-home backend.
//
// The panel holds no durable state of its own: users, hubs, devices, areas and
// reading history all live server-side. This package fetches device snapshots
// for the live sync engine and passes mutations and authentication calls
// through for the local panel API.
//
// # Error Taxonomy
//
// Every call classifies failures into sentinels checked with errors.Is:
//
//   - ErrAuth: HTTP 401, or no usable token. Fatal to the current session.
//   - ErrNetwork: transport failure, timeout or an undecodable response.
//   - ErrServer: HTTP 5xx.
//   - ErrNotFound / ErrRejected: other 4xx responses.
//
// FetchSnapshot additionally wraps every non-auth failure in ErrNetwork, so the
// sync engine only has to distinguish "auth" from "transient".
//
// # Wire Normalisation
//
// Device records carry two optional numbers, device_data and device_state.
// They are folded into a single device.Value at decode time: device_data wins
// when both are present, device_state alone is a discrete code, and neither is
// NoData.
package backend
