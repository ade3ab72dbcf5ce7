package domain

import (
	"time"

	"github.com/driftwatch/deltasync/pkg/errors"
)

// SyncOperation is the kind of change a delta carries.
type SyncOperation string

const (
	OperationCreate  SyncOperation = "CREATE"
	OperationUpdate  SyncOperation = "UPDATE"
	OperationDelete  SyncOperation = "DELETE"
	OperationRestore SyncOperation = "RESTORE"
)

// ConflictPolicy selects how concurrent edits to the same entity are resolved.
type ConflictPolicy string

const (
	PolicyLastWriteWins        ConflictPolicy = "last_write_wins"
	PolicyClientWins           ConflictPolicy = "client_wins"
	PolicyServerWins           ConflictPolicy = "server_wins"
	PolicyOperationalTransform ConflictPolicy = "operational_transform"
	PolicyManualResolution     ConflictPolicy = "manual_resolution"
)

// Valid reports whether p is one of the five supported policies.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyLastWriteWins, PolicyClientWins, PolicyServerWins,
		PolicyOperationalTransform, PolicyManualResolution:
		return true
	}
	return false
}

// Per-delta rejection reasons. These are business outcomes reported back to
// the client, never retried automatically.
const (
	RejectEntityNotFound      = "entity_not_found"
	RejectEntityAlreadyExists = "entity_already_exists"
	RejectUnknownEntityType   = "unknown_entity_type"
	RejectUnknownOperation    = "unknown_operation"
	RejectCreateFailed        = "create_failed"
	RejectUpdateFailed        = "update_failed"
	RejectDeleteFailed        = "delete_failed"
	RejectProcessingError     = "processing_error"

	// ConflictETagMismatch marks a conflict outcome caused by the optimistic
	// concurrency check.
	ConflictETagMismatch = "etag_mismatch"
)

// SyncDelta is a single entity change in transit. Deltas are request-scoped
// values derived from entity state on pull and consumed on push; they are
// never persisted as-is.
type SyncDelta struct {
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	Operation      SyncOperation  `json:"operation"`
	ETag           string         `json:"etag"`
	RowVersion     int64          `json:"row_version"`
	LastModifiedAt time.Time      `json:"last_modified_at"`
	LastModifiedBy string         `json:"last_modified_by"`
	Data           map[string]any `json:"data,omitempty"`
	// BaseData is the client's last-synced snapshot of the entity, used as
	// the common ancestor for three-way merging. Optional; without it the
	// merge degrades to an empty base.
	BaseData     map[string]any `json:"base_data,omitempty"`
	ConflictData map[string]any `json:"conflict_data,omitempty"`
}

// SyncPullRequest asks for entity changes since a checkpoint.
type SyncPullRequest struct {
	ClientID string `json:"client_id"`
	// LastSyncTimestamp is the checkpoint. Absent means "since now minus the
	// server's default pull window".
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp,omitempty"`
	// Cursor resumes a paginated pull. Opaque; clients echo it back verbatim.
	// Takes precedence over LastSyncTimestamp when set.
	Cursor         string   `json:"cursor,omitempty"`
	EntityTypes    []string `json:"entity_types,omitempty"`
	BatchSize      int      `json:"batch_size,omitempty"`
	IncludeDeleted bool     `json:"include_deleted,omitempty"`
}

// SyncPullResponse returns deltas ordered by (last_modified_at, entity_id)
// ascending. The ordering defines resumability across cursored pulls.
type SyncPullResponse struct {
	Deltas          []SyncDelta `json:"deltas"`
	ServerTimestamp time.Time   `json:"server_timestamp"`
	HasMore         bool        `json:"has_more"`
	NextCursor      string      `json:"next_cursor,omitempty"`
	// Conflicts are deltas for entities the server already knows are
	// contested (unresolved conflict data present).
	Conflicts []SyncDelta `json:"conflicts"`
}

// SyncPushRequest submits client deltas. The policy applies to every delta in
// the push.
type SyncPushRequest struct {
	ClientID        string         `json:"client_id"`
	Deltas          []SyncDelta    `json:"deltas"`
	ClientTimestamp time.Time      `json:"client_timestamp"`
	Policy          ConflictPolicy `json:"policy,omitempty"`
}

// AcceptedDelta reports one applied delta with the post-apply version so the
// client can adopt the new etag.
type AcceptedDelta struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ETag       string `json:"etag"`
	RowVersion int64  `json:"row_version"`
}

// RejectedDelta reports one delta that could not be applied.
type RejectedDelta struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ETag       string `json:"etag,omitempty"`
	Reason     string `json:"reason"`
	Details    string `json:"details,omitempty"`
}

// FieldConflict surfaces one contested field from a three-way merge.
type FieldConflict struct {
	Field       string `json:"field"`
	ClientValue any    `json:"client_value"`
	ServerValue any    `json:"server_value"`
	BaseValue   any    `json:"base_value"`
}

// SyncConflict reports one contested entity. ServerDelta is the current
// server-side state; FieldConflicts and SuggestedData are populated when the
// operational-transform policy produced a partial merge requiring review.
type SyncConflict struct {
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Reason         string          `json:"reason"`
	ServerDelta    SyncDelta       `json:"server_delta"`
	FieldConflicts []FieldConflict `json:"field_conflicts,omitempty"`
	SuggestedData  map[string]any  `json:"suggested_data,omitempty"`
}

// SyncPushResponse enumerates exactly one outcome per submitted delta.
type SyncPushResponse struct {
	Accepted        []AcceptedDelta `json:"accepted_deltas"`
	Rejected        []RejectedDelta `json:"rejected_deltas"`
	Conflicts       []SyncConflict  `json:"conflicts"`
	ServerTimestamp time.Time       `json:"server_timestamp"`
	Stats           SyncStats       `json:"stats"`
}

// SyncStats summarizes one push for logging and clients.
type SyncStats struct {
	Processed int `json:"processed"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Conflicts int `json:"conflicts"`
	Resolved  int `json:"resolved"`
}

// Event bus topics published by the sync service.
const (
	EventSyncPushCompleted    = "sync:push:completed"
	EventSyncConflictDetected = "sync:conflict:detected"
)

// PushCompletedEvent is the payload for EventSyncPushCompleted.
type PushCompletedEvent struct {
	ClientID string
	Policy   ConflictPolicy
	Stats    SyncStats
}

// ConflictDetectedEvent is the payload for EventSyncConflictDetected.
type ConflictDetectedEvent struct {
	ClientID   string
	EntityType string
	EntityID   string
	Reason     string
}

// TransientError tags transport/store failures the retry wrapper may retry.
// Business rejections and conflicts are response payloads, never errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a transport-class failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrInvalidCursor is returned when a pull cursor cannot be decoded. Client
// error, never retried.
var ErrInvalidCursor = errors.New("invalid sync cursor")
