package sync

import (
	"context"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the delta sync engine: pull produces ordered delta streams since
// a checkpoint, push applies client deltas under optimistic concurrency, and
// the WithRetry variants wrap both in transient-failure retry.
type Service interface {
	Pull(ctx context.Context, req *domain.SyncPullRequest) (*domain.SyncPullResponse, error)
	Push(ctx context.Context, req *domain.SyncPushRequest) (*domain.SyncPushResponse, error)
	PullWithRetry(ctx context.Context, req *domain.SyncPullRequest) (*domain.SyncPullResponse, error)
	PushWithRetry(ctx context.Context, req *domain.SyncPushRequest) (*domain.SyncPushResponse, error)
}

// EventPublisher is the slice of the event bus the service publishes on.
// Satisfied by EventBus.Bus.
type EventPublisher interface {
	Publish(topic string, args ...interface{})
}

func NewService(log logger.Logger, cfg *domain.Config, repo domain.EntityRepo, registry *domain.EntityRegistry, bus EventPublisher) Service {
	return &service{
		log:      log.With().Str("module", "sync").Logger(),
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		resolver: NewResolver(log),
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
		newETag:  func() string { return "uuid=" + uuid.NewString() },
	}
}

type service struct {
	log      zerolog.Logger
	cfg      *domain.Config
	repo     domain.EntityRepo
	registry *domain.EntityRegistry
	resolver *Resolver
	bus      EventPublisher

	// injectable for deterministic tests
	now     func() time.Time
	newETag func() string
}

// entityToDelta derives the wire delta for the current entity state. The
// operation is DELETE for tombstones, CREATE for first versions, UPDATE
// otherwise. Payload data is omitted for tombstones.
func entityToDelta(e *domain.SyncEntity) domain.SyncDelta {
	d := domain.SyncDelta{
		EntityType:     e.Type,
		EntityID:       e.ID,
		ETag:           e.ETag,
		RowVersion:     e.RowVersion,
		LastModifiedAt: e.LastModifiedAt,
		LastModifiedBy: e.LastModifiedBy,
		ConflictData:   e.ConflictData,
	}

	switch {
	case e.IsDeleted:
		d.Operation = domain.OperationDelete
	case e.RowVersion == 1:
		d.Operation = domain.OperationCreate
		d.Data = e.Payload
	default:
		d.Operation = domain.OperationUpdate
		d.Data = e.Payload
	}

	return d
}

func (s *service) publish(topic string, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, payload)
}
