package location

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Source loads the reference lists from the backend.
type Source interface {
	ListHubs(ctx context.Context) ([]Hub, error)
	ListAreas(ctx context.Context) ([]Area, error)
}

const (
	hubsKey  = "hubs"
	areasKey = "areas"

	// cleanupInterval is how often expired entries are purged.
	cleanupInterval = time.Minute
)

// Directory caches the hub and area lists for a fixed TTL.
type Directory struct {
	source Source
	cache  *cache.Cache
	group  singleflight.Group
}

// NewDirectory returns a Directory over source. A non-positive ttl disables expiry;
// entries then live until Invalidate.
func NewDirectory(source Source, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Directory{
		source: source,
		cache:  cache.New(ttl, cleanupInterval),
	}
}

// Hubs returns every hub, from cache when fresh.
func (d *Directory) Hubs(ctx context.Context) ([]Hub, error) {
	return load(ctx, d, hubsKey, d.source.ListHubs)
}

// Areas returns every area, from cache when fresh.
func (d *Directory) Areas(ctx context.Context) ([]Area, error) {
	return load(ctx, d, areasKey, d.source.ListAreas)
}

// Hub looks up one hub by ID.
func (d *Directory) Hub(ctx context.Context, id string) (Hub, error) {
	hubs, err := d.Hubs(ctx)
	if err != nil {
		return Hub{}, err
	}
	for _, h := range hubs {
		if h.ID == id {
			return h, nil
		}
	}
	return Hub{}, fmt.Errorf("%w: %s", ErrHubNotFound, id)
}

// Area looks up one area by ID.
func (d *Directory) Area(ctx context.Context, id string) (Area, error) {
	areas, err := d.Areas(ctx)
	if err != nil {
		return Area{}, err
	}
	for _, a := range areas {
		if a.ID == id {
			return a, nil
		}
	}
	return Area{}, fmt.Errorf("%w: %s", ErrAreaNotFound, id)
}

// AreasForHub returns the areas defined on hubID.
func (d *Directory) AreasForHub(ctx context.Context, hubID string) ([]Area, error) {
	areas, err := d.Areas(ctx)
	if err != nil {
		return nil, err
	}
	out := []Area{}
	for _, a := range areas {
		if a.HubID == hubID {
			out = append(out, a)
		}
	}
	return out, nil
}

// InvalidateHubs drops the cached hub list. Call after any hub mutation.
func (d *Directory) InvalidateHubs() {
	d.cache.Delete(hubsKey)
}

// InvalidateAreas drops the cached area list. Call after any area mutation.
func (d *Directory) InvalidateAreas() {
	d.cache.Delete(areasKey)
}

// Invalidate drops everything, e.g. on logout.
func (d *Directory) Invalidate() {
	d.cache.Flush()
}

// load serves key from cache or fetches it once for all concurrent callers.
// Errors are not cached.
func load[T any](ctx context.Context, d *Directory, key string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	if v, ok := d.cache.Get(key); ok {
		return clone(v.([]T)), nil //nolint:forcetypeassert // key is only ever stored with this type
	}

	v, err, _ := d.group.Do(key, func() (any, error) {
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		d.cache.SetDefault(key, items)
		return items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return clone(v.([]T)), nil //nolint:forcetypeassert // fetch returns []T
}

func clone[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
