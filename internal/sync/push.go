package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/pkg/errors"
)

// deltaOutcome is the result of processing one delta. Exactly one of the
// three fields is set; no delta is ever silently dropped.
type deltaOutcome struct {
	accepted *domain.AcceptedDelta
	rejected *domain.RejectedDelta
	conflict *domain.SyncConflict
	// resolved marks a conflict that a policy resolved and applied as an
	// accepted mutation.
	resolved bool
}

// Push processes every delta in the batch; failures are per-delta, never
// batch-aborting. All accepted mutations commit atomically in one store
// transaction: if the commit fails, the whole push fails and is safe to
// retry in full.
func (s *service) Push(ctx context.Context, req *domain.SyncPushRequest) (*domain.SyncPushResponse, error) {
	if req == nil || req.ClientID == "" {
		return nil, errors.New("client_id is required")
	}

	policy := req.Policy
	if policy == "" {
		policy = domain.PolicyLastWriteWins
	}
	if !policy.Valid() {
		return nil, errors.New("unknown conflict policy: %s", policy)
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	resp := &domain.SyncPushResponse{
		Accepted:  []domain.AcceptedDelta{},
		Rejected:  []domain.RejectedDelta{},
		Conflicts: []domain.SyncConflict{},
	}

	var conflictEvents []domain.ConflictDetectedEvent

	for i := range req.Deltas {
		delta := req.Deltas[i]
		outcome := s.processDelta(ctx, tx, delta, req.ClientID, policy)

		switch {
		case outcome.accepted != nil:
			resp.Accepted = append(resp.Accepted, *outcome.accepted)
			if outcome.resolved {
				resp.Stats.Resolved++
			}
		case outcome.rejected != nil:
			resp.Rejected = append(resp.Rejected, *outcome.rejected)
		case outcome.conflict != nil:
			resp.Conflicts = append(resp.Conflicts, *outcome.conflict)
			conflictEvents = append(conflictEvents, domain.ConflictDetectedEvent{
				ClientID:   req.ClientID,
				EntityType: outcome.conflict.EntityType,
				EntityID:   outcome.conflict.EntityID,
				Reason:     outcome.conflict.Reason,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Str("clientID", req.ClientID).Msg("push commit failed")
		return nil, err
	}

	resp.ServerTimestamp = s.now()
	resp.Stats.Processed = len(req.Deltas)
	resp.Stats.Accepted = len(resp.Accepted)
	resp.Stats.Rejected = len(resp.Rejected)
	resp.Stats.Conflicts = len(resp.Conflicts)

	// events go out only after the batch is durable
	for _, ev := range conflictEvents {
		s.publish(domain.EventSyncConflictDetected, ev)
	}
	s.publish(domain.EventSyncPushCompleted, domain.PushCompletedEvent{
		ClientID: req.ClientID,
		Policy:   policy,
		Stats:    resp.Stats,
	})

	s.log.Debug().
		Str("clientID", req.ClientID).
		Str("policy", string(policy)).
		Int("processed", resp.Stats.Processed).
		Int("accepted", resp.Stats.Accepted).
		Int("rejected", resp.Stats.Rejected).
		Int("conflicts", resp.Stats.Conflicts).
		Msg("push completed")

	return resp, nil
}

// processDelta dispatches one delta. A panic is contained to the delta and
// reported as a processing_error so one malformed delta cannot take down the
// batch.
func (s *service) processDelta(ctx context.Context, tx domain.EntityTx, delta domain.SyncDelta, clientID string, policy domain.ConflictPolicy) (outcome deltaOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().
				Str("entityType", delta.EntityType).
				Str("entityID", delta.EntityID).
				Interface("panic", rec).
				Msg("panic while processing delta")
			outcome = reject(delta, domain.RejectProcessingError, fmt.Sprintf("panic: %v", rec))
		}
	}()

	spec, ok := s.registry.Lookup(delta.EntityType)
	if !ok {
		return reject(delta, domain.RejectUnknownEntityType, "entity type is not registered")
	}

	switch delta.Operation {
	case domain.OperationCreate:
		return s.processCreate(ctx, tx, spec, delta, clientID)
	case domain.OperationUpdate:
		return s.processUpdate(ctx, tx, spec, delta, clientID, policy)
	case domain.OperationDelete:
		return s.processDelete(ctx, tx, delta, clientID)
	case domain.OperationRestore:
		// tombstone restore has no defined semantics here
		return reject(delta, domain.RejectUnknownOperation, "RESTORE is not supported")
	default:
		return reject(delta, domain.RejectUnknownOperation, fmt.Sprintf("operation %q is not supported", delta.Operation))
	}
}

func (s *service) processCreate(ctx context.Context, tx domain.EntityTx, spec domain.EntityTypeSpec, delta domain.SyncDelta, clientID string) deltaOutcome {
	if delta.Data == nil {
		return reject(delta, domain.RejectCreateFailed, "delta carries no data")
	}

	existing, err := tx.FindByID(ctx, delta.EntityType, delta.EntityID)
	if err != nil {
		return reject(delta, domain.RejectProcessingError, err.Error())
	}

	if existing != nil && !existing.IsDeleted {
		serverDelta := entityToDelta(existing)
		return deltaOutcome{conflict: &domain.SyncConflict{
			EntityType:  delta.EntityType,
			EntityID:    delta.EntityID,
			Reason:      domain.RejectEntityAlreadyExists,
			ServerDelta: serverDelta,
		}}
	}

	now := s.now()

	if existing != nil {
		// recreate over a tombstone: the version history continues so
		// row_version stays strictly increasing
		existing.Payload = spec.ApplyPatch(nil, delta.Data)
		existing.IsDeleted = false
		s.bump(existing, clientID, now)
		if err := tx.Update(ctx, existing); err != nil {
			return reject(delta, domain.RejectCreateFailed, err.Error())
		}
		return accept(existing)
	}

	entity := &domain.SyncEntity{
		Type:           delta.EntityType,
		ID:             delta.EntityID,
		Payload:        spec.ApplyPatch(nil, delta.Data),
		ETag:           s.newETag(),
		RowVersion:     1,
		SyncStatus:     domain.SyncStatusSynced,
		CreatedAt:      now,
		LastModifiedAt: now,
		LastModifiedBy: clientID,
	}

	if err := tx.Insert(ctx, entity); err != nil {
		return reject(delta, domain.RejectCreateFailed, err.Error())
	}

	return accept(entity)
}

func (s *service) processUpdate(ctx context.Context, tx domain.EntityTx, spec domain.EntityTypeSpec, delta domain.SyncDelta, clientID string, policy domain.ConflictPolicy) deltaOutcome {
	if delta.Data == nil {
		return reject(delta, domain.RejectUpdateFailed, "delta carries no data")
	}

	existing, err := tx.FindByID(ctx, delta.EntityType, delta.EntityID)
	if err != nil {
		return reject(delta, domain.RejectProcessingError, err.Error())
	}
	if existing == nil || existing.IsDeleted {
		return reject(delta, domain.RejectEntityNotFound, "entity does not exist")
	}

	// optimistic concurrency check
	if existing.ETag == delta.ETag {
		existing.Payload = spec.ApplyPatch(existing.Payload, delta.Data)
		s.bump(existing, clientID, s.now())
		if err := tx.Update(ctx, existing); err != nil {
			return reject(delta, domain.RejectUpdateFailed, err.Error())
		}
		return accept(existing)
	}

	serverDelta := entityToDelta(existing)
	res := s.resolver.Resolve(delta, serverDelta, policy)

	if res.Resolved {
		// a policy-resolved conflict applies like an accepted update and
		// counts as exactly one version increment
		existing.Payload = spec.ApplyPatch(existing.Payload, res.MergedData)
		s.bump(existing, clientID, s.now())
		if err := tx.Update(ctx, existing); err != nil {
			return reject(delta, domain.RejectUpdateFailed, err.Error())
		}
		s.log.Debug().
			Str("entityType", delta.EntityType).
			Str("entityID", delta.EntityID).
			Str("policy", string(policy)).
			Str("winner", res.Winner).
			Msg("conflict auto-resolved")
		out := accept(existing)
		out.resolved = true
		return out
	}

	if err := s.markConflict(ctx, tx, delta, clientID, policy, res.Reason); err != nil {
		return reject(delta, domain.RejectProcessingError, err.Error())
	}

	return deltaOutcome{conflict: &domain.SyncConflict{
		EntityType:     delta.EntityType,
		EntityID:       delta.EntityID,
		Reason:         domain.ConflictETagMismatch,
		ServerDelta:    serverDelta,
		FieldConflicts: res.FieldConflicts,
		SuggestedData:  res.SuggestedData,
	}}
}

func (s *service) processDelete(ctx context.Context, tx domain.EntityTx, delta domain.SyncDelta, clientID string) deltaOutcome {
	existing, err := tx.FindByID(ctx, delta.EntityType, delta.EntityID)
	if err != nil {
		return reject(delta, domain.RejectProcessingError, err.Error())
	}

	// deleting something absent, or again, is an idempotent no-op
	if existing == nil {
		return deltaOutcome{accepted: &domain.AcceptedDelta{
			EntityType: delta.EntityType,
			EntityID:   delta.EntityID,
			ETag:       delta.ETag,
			RowVersion: delta.RowVersion,
		}}
	}
	if existing.IsDeleted {
		return accept(existing)
	}

	// delete conflicts never auto-resolve through merge policies; a
	// destructive operation is always escalated
	if existing.ETag != delta.ETag {
		serverDelta := entityToDelta(existing)
		if err := s.markConflict(ctx, tx, delta, clientID, domain.PolicyManualResolution, "stale delete"); err != nil {
			return reject(delta, domain.RejectProcessingError, err.Error())
		}
		return deltaOutcome{conflict: &domain.SyncConflict{
			EntityType:  delta.EntityType,
			EntityID:    delta.EntityID,
			Reason:      domain.ConflictETagMismatch,
			ServerDelta: serverDelta,
		}}
	}

	existing.IsDeleted = true
	s.bump(existing, clientID, s.now())
	existing.SyncStatus = domain.SyncStatusDeleted
	if err := tx.Update(ctx, existing); err != nil {
		return reject(delta, domain.RejectDeleteFailed, err.Error())
	}

	return accept(existing)
}

// bump applies the versioning invariant for one accepted mutation: etag and
// row_version change together and only together. Any accepted write also
// clears conflict bookkeeping from earlier escalations.
func (s *service) bump(e *domain.SyncEntity, clientID string, now time.Time) {
	e.ETag = s.newETag()
	e.RowVersion++
	e.LastModifiedAt = now
	e.LastModifiedBy = clientID
	e.SyncStatus = domain.SyncStatusSynced
	e.ConflictData = nil
}

// markConflict persists conflict bookkeeping with the contested client data
// retained for audit. It does not touch etag or row_version.
func (s *service) markConflict(ctx context.Context, tx domain.EntityTx, delta domain.SyncDelta, clientID string, policy domain.ConflictPolicy, reason string) error {
	return tx.MarkConflict(ctx, delta.EntityType, delta.EntityID, map[string]any{
		"reason":      reason,
		"policy":      string(policy),
		"client_id":   clientID,
		"client_etag": delta.ETag,
		"client_data": delta.Data,
		"detected_at": s.now(),
	})
}

func accept(e *domain.SyncEntity) deltaOutcome {
	return deltaOutcome{accepted: &domain.AcceptedDelta{
		EntityType: e.Type,
		EntityID:   e.ID,
		ETag:       e.ETag,
		RowVersion: e.RowVersion,
	}}
}

func reject(delta domain.SyncDelta, reason, details string) deltaOutcome {
	return deltaOutcome{rejected: &domain.RejectedDelta{
		EntityType: delta.EntityType,
		EntityID:   delta.EntityID,
		ETag:       delta.ETag,
		Reason:     reason,
		Details:    details,
	}}
}
