package cache

import "sync"

// Kind names an entity family for invalidation purposes.
type Kind string

const (
	KindUser    Kind = "users"
	KindAddress Kind = "addresses"
)

type target struct {
	evictOne         func(id string)
	clearCollections func()
}

// Invalidator fans a mutation out to every cache whose contents could embed
// the mutated record. Registration happens once at composition time;
// Invalidate is called from request handling.
type Invalidator struct {
	mu      sync.RWMutex
	targets map[Kind]target
	embeds  map[Kind][]Kind
}

// NewInvalidator constructs an empty coordinator.
func NewInvalidator() *Invalidator {
	return &Invalidator{
		targets: make(map[Kind]target),
		embeds:  make(map[Kind][]Kind),
	}
}

// Register wires a kind's single-item eviction and collection clearing hooks.
func (inv *Invalidator) Register(kind Kind, evictOne func(id string), clearCollections func()) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.targets[kind] = target{evictOne: evictOne, clearCollections: clearCollections}
}

// EmbeddedIn declares that member records appear inside owner
// representations, so a member mutation must spill into the owner's caches.
func (inv *Invalidator) EmbeddedIn(member, owner Kind) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.embeds[member] = append(inv.embeds[member], owner)
}

// Invalidate applies the invalidation rule for one mutated record: evict its
// single-item slot, clear its kind's collection cache, and for every kind
// embedding it, evict the supplied owner ids and clear that kind's
// collections too. Collections are cleared wholesale because any filter or
// page could have included the record.
func (inv *Invalidator) Invalidate(kind Kind, id string, ownerIDs ...string) {
	inv.mu.RLock()
	tgt, ok := inv.targets[kind]
	owners := inv.embeds[kind]
	inv.mu.RUnlock()

	if ok {
		if id != "" && tgt.evictOne != nil {
			tgt.evictOne(id)
		}
		if tgt.clearCollections != nil {
			tgt.clearCollections()
		}
	}

	for _, ownerKind := range owners {
		inv.mu.RLock()
		ot, registered := inv.targets[ownerKind]
		inv.mu.RUnlock()
		if !registered {
			continue
		}
		if ot.evictOne != nil {
			for _, ownerID := range ownerIDs {
				ot.evictOne(ownerID)
			}
		}
		if ot.clearCollections != nil {
			ot.clearCollections()
		}
	}
}
