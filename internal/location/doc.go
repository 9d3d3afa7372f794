// Package location provides the hub and area reference model.
//
// Hubs are the physical gateways a user has claimed; areas are user-defined
// groupings (rooms, floors) that devices can be assigned to. Both live on the
// remote backend. This package defines their panel-side shape and a Directory
// that caches the backend's lists so selectors joining on hub and area IDs do
// not refetch them on every render.
//
// # Thread Safety
//
// Directory is safe for concurrent use. Concurrent misses for the same list
// share one backend call.
package location
