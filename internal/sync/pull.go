package sync

import (
	"context"
	"sort"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// Pull returns entity changes after the request's checkpoint, ordered by
// (last_modified_at, entity_id) ascending and truncated to the batch size.
// Any store query failure aborts the whole pull; there is no partial response.
func (s *service) Pull(ctx context.Context, req *domain.SyncPullRequest) (*domain.SyncPullResponse, error) {
	if req == nil || req.ClientID == "" {
		return nil, errors.New("client_id is required")
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.Sync.DefaultBatchSize
	}
	if max := s.cfg.Sync.MaxBatchSize; max > 0 && batchSize > max {
		batchSize = max
	}

	since, cursorID, err := s.pullPosition(req)
	if err != nil {
		return nil, err
	}

	types := s.pullTypes(req.EntityTypes)

	// fan out one query per entity type; the first failure cancels the rest
	results := make([][]domain.SyncEntity, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, entityType := range types {
		i, entityType := i, entityType
		g.Go(func() error {
			entities, err := s.repo.FindChangedSince(gctx, entityType, since, cursorID, req.IncludeDeleted, batchSize)
			if err != nil {
				return err
			}
			results[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Str("clientID", req.ClientID).Msg("pull query failed")
		return nil, err
	}

	var merged []domain.SyncEntity
	for _, entities := range results {
		merged = append(merged, entities...)
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.LastModifiedAt.Equal(b.LastModifiedAt) {
			return a.LastModifiedAt.Before(b.LastModifiedAt)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Type < b.Type
	})

	if len(merged) > batchSize {
		merged = merged[:batchSize]
	}

	deltas := make([]domain.SyncDelta, 0, len(merged))
	for i := range merged {
		deltas = append(deltas, entityToDelta(&merged[i]))
	}

	resp := &domain.SyncPullResponse{
		Deltas:          deltas,
		ServerTimestamp: s.now(),
		HasMore:         len(deltas) >= batchSize,
		Conflicts:       []domain.SyncDelta{},
	}

	if len(deltas) > 0 {
		last := deltas[len(deltas)-1]
		resp.NextCursor = encodeCursor(last.LastModifiedAt, last.EntityID)
	}

	// conflicts are entities with still-unresolved conflict data; detection
	// against client state happens on push, not here
	conflicted, err := s.repo.FindConflicted(ctx, types, batchSize)
	if err != nil {
		s.log.Error().Err(err).Str("clientID", req.ClientID).Msg("conflict query failed")
		return nil, err
	}
	for i := range conflicted {
		resp.Conflicts = append(resp.Conflicts, entityToDelta(&conflicted[i]))
	}

	s.log.Debug().
		Str("clientID", req.ClientID).
		Int("deltas", len(resp.Deltas)).
		Int("conflicts", len(resp.Conflicts)).
		Bool("hasMore", resp.HasMore).
		Msg("pull completed")

	return resp, nil
}

// pullPosition resolves the resume position. A cursor wins over an explicit
// checkpoint; with neither, the default window bounds the lookback using
// duration subtraction, so the window is correct across midnight.
func (s *service) pullPosition(req *domain.SyncPullRequest) (time.Time, string, error) {
	if req.Cursor != "" {
		return decodeCursor(req.Cursor)
	}
	if req.LastSyncTimestamp != nil {
		return req.LastSyncTimestamp.UTC(), "", nil
	}
	return s.now().Add(-s.cfg.Sync.DefaultPullWindow()), "", nil
}

// pullTypes intersects the request filter with the registry. Unregistered
// names in the filter are ignored.
func (s *service) pullTypes(filter []string) []string {
	if len(filter) == 0 {
		return s.registry.Names()
	}

	var types []string
	for _, name := range filter {
		if _, ok := s.registry.Lookup(name); ok {
			types = append(types, name)
		}
	}
	return types
}
