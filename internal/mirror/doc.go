// Package mirror republishes the panel's live device snapshot onto a local
// MQTT broker.
//
// Every device gets a retained JSON message on
// <prefix>/state/<hub_id>/<device_id>, rewritten only when its payload
// changes. Devices that leave the snapshot, including ones left behind by an
// earlier run, have their retained message cleared. The live sync status is
// kept on <prefix>/status.
//
// With commands enabled, messages on <prefix>/command/<device_id> carrying a
// target value are range-checked against the device type and forwarded to
// the backend.
package mirror
