// Package device defines the panel's view of a device and the pure projections
// computed over a device snapshot.
//
// Devices are owned by the backend. The panel never creates or deletes one; it
// observes whole-collection snapshots and derives filtered views from them.
//
// # Key Types
//
//   - Device: server-reported state of one sensor or actuator
//   - Value: tagged latest reading (continuous, discrete, or no data)
//   - TypeInfo: static registry entry mapping a type code to category and kind
//   - Snapshot: an immutable, atomically replaced collection of devices
//   - Stats: aggregate counts over a set of devices
//
// # Selectors
//
// ForHub, ForArea, UnassignedForHub, ByID, ComputeStats and FilterDevices are pure:
// they never modify their input and always return a fresh slice. Memoisation
// lives with the snapshot owner (see package livesync).
package device
