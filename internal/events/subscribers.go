package events

import (
	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"

	"github.com/rs/zerolog"
)

// Subscriber is the slice of the event bus used for registration. Satisfied
// by EventBus.Bus.
type Subscriber interface {
	SubscribeAsync(topic string, fn interface{}, transactional bool) error
}

// Subscribers reacts to sync engine events. Handlers run off the request
// path; a slow subscriber never stalls a push.
type Subscribers struct {
	log zerolog.Logger
	bus Subscriber
}

func NewSubscribers(log logger.Logger, bus Subscriber) *Subscribers {
	s := &Subscribers{
		log: log.With().Str("module", "events").Logger(),
		bus: bus,
	}

	s.register()

	return s
}

func (s *Subscribers) register() {
	if err := s.bus.SubscribeAsync(domain.EventSyncPushCompleted, s.pushCompleted, false); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventSyncPushCompleted).Msg("could not subscribe")
	}
	if err := s.bus.SubscribeAsync(domain.EventSyncConflictDetected, s.conflictDetected, false); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventSyncConflictDetected).Msg("could not subscribe")
	}
}

func (s *Subscribers) pushCompleted(ev domain.PushCompletedEvent) {
	s.log.Info().
		Str("clientID", ev.ClientID).
		Str("policy", string(ev.Policy)).
		Int("processed", ev.Stats.Processed).
		Int("accepted", ev.Stats.Accepted).
		Int("rejected", ev.Stats.Rejected).
		Int("conflicts", ev.Stats.Conflicts).
		Int("resolved", ev.Stats.Resolved).
		Msg("push batch processed")
}

func (s *Subscribers) conflictDetected(ev domain.ConflictDetectedEvent) {
	s.log.Warn().
		Str("clientID", ev.ClientID).
		Str("entityType", ev.EntityType).
		Str("entityID", ev.EntityID).
		Str("reason", ev.Reason).
		Msg("sync conflict requires resolution")
}
