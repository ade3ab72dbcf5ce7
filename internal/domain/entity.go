package domain

import (
	"context"
	"sort"
	"time"
)

// SyncStatus describes where an entity stands in the sync lifecycle.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusDeleted  SyncStatus = "deleted"
)

// SyncEntity is the versioned entity every syncable record reduces to. The
// engine never looks inside Payload beyond field-level merging; the business
// schema lives with the store.
//
// ETag and RowVersion change together and only together: every accepted
// mutation regenerates the etag and increments the row version by exactly one.
type SyncEntity struct {
	Type           string
	ID             string
	Payload        map[string]any
	ETag           string
	RowVersion     int64
	SyncStatus     SyncStatus
	ConflictData   map[string]any
	IsDeleted      bool
	CreatedAt      time.Time
	LastModifiedAt time.Time
	LastModifiedBy string
}

// reservedFields are never client-writable through a payload patch. They are
// either identity or versioning metadata owned by the store.
var reservedFields = map[string]struct{}{
	"id":               {},
	"entity_id":        {},
	"entity_type":      {},
	"etag":             {},
	"row_version":      {},
	"sync_status":      {},
	"conflict_data":    {},
	"is_deleted":       {},
	"created_at":       {},
	"last_modified_at": {},
	"last_modified_by": {},
}

// IsReservedField reports whether a payload field is identity/versioning
// metadata that a client patch must never touch.
func IsReservedField(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// EntityTypeSpec describes one registered entity type. An empty Fields slice
// means any non-reserved payload field may be patched; a non-empty slice is an
// explicit whitelist.
type EntityTypeSpec struct {
	Name   string
	Fields []string
}

// ApplyPatch copies the patchable fields of patch onto a copy of dst and
// returns it. Reserved fields and fields outside the whitelist are dropped,
// never applied.
func (s EntityTypeSpec) ApplyPatch(dst, patch map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range patch {
		if !s.Patchable(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Patchable reports whether the named payload field may be written by a
// client patch for this entity type.
func (s EntityTypeSpec) Patchable(field string) bool {
	if IsReservedField(field) {
		return false
	}
	if len(s.Fields) == 0 {
		return true
	}
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// EntityRegistry is the explicit typed registry mapping entity_type strings to
// their specs. It is populated once at startup; lookups are read-only after
// that, so no locking is needed.
type EntityRegistry struct {
	specs map[string]EntityTypeSpec
}

// NewEntityRegistry builds a registry from the given specs.
func NewEntityRegistry(specs ...EntityTypeSpec) *EntityRegistry {
	r := &EntityRegistry{specs: make(map[string]EntityTypeSpec, len(specs))}
	for _, s := range specs {
		r.specs[s.Name] = s
	}
	return r
}

// Lookup returns the spec for an entity type name.
func (r *EntityRegistry) Lookup(name string) (EntityTypeSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns all registered entity type names, sorted for deterministic
// iteration order.
func (r *EntityRegistry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntityRepo is the store contract the sync engine consumes. The engine is
// agnostic to the storage technology as long as these operations exist and the
// etag/row_version invariant is upheld.
type EntityRepo interface {
	// FindChangedSince returns entities of one type changed after the given
	// position, ordered by (last_modified_at, entity_id) ascending. cursorID
	// breaks ties at exactly the since timestamp: rows with
	// last_modified_at == since are included only when entity_id > cursorID.
	FindChangedSince(ctx context.Context, entityType string, since time.Time, cursorID string, includeDeleted bool, limit int) ([]SyncEntity, error)

	// FindConflicted returns entities currently carrying unresolved conflict
	// data, ordered by (last_modified_at, entity_id) ascending.
	FindConflicted(ctx context.Context, entityTypes []string, limit int) ([]SyncEntity, error)

	// CountByType returns the number of active (non-deleted) entities per type.
	CountByType(ctx context.Context) (map[string]int64, error)

	// DeleteTombstonesBefore physically removes soft-deleted entities whose
	// last modification is older than cutoff. Returns the number removed.
	DeleteTombstonesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Begin opens the transaction a push batch runs in. All accepted
	// mutations of the batch commit atomically or not at all.
	Begin(ctx context.Context) (EntityTx, error)
}

// EntityTx is a single push batch transaction.
type EntityTx interface {
	// FindByID loads one entity, tombstones included. Returns (nil, nil) when
	// the entity does not exist.
	FindByID(ctx context.Context, entityType, id string) (*SyncEntity, error)

	// Insert persists a new entity.
	Insert(ctx context.Context, e *SyncEntity) error

	// Update replaces the stored entity state. Callers are responsible for
	// the etag regeneration and row_version increment.
	Update(ctx context.Context, e *SyncEntity) error

	// MarkConflict records conflict bookkeeping (sync_status and
	// conflict_data) without touching etag or row_version, so the versioning
	// invariant holds: those two change only on accepted mutations.
	MarkConflict(ctx context.Context, entityType, id string, conflictData map[string]any) error

	Commit() error
	Rollback() error
}
