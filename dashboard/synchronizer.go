package dashboard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefreshStatus is the kind of outcome of one refresh cycle.
type RefreshStatus string

const (
	RefreshSkipped   RefreshStatus = "skipped"
	RefreshFailed    RefreshStatus = "failed"
	RefreshSucceeded RefreshStatus = "succeeded"
)

// Reasons reported with skipped refreshes.
const (
	ReasonUnauthorized         = "unauthorized"
	ReasonConfigurationMissing = "configuration missing"
	ReasonBusy                 = "refresh already in progress"
)

// RefreshOutcome is what a refresh cycle reports to its caller.
type RefreshOutcome struct {
	Status      RefreshStatus
	Reason      string
	RecordCount int
}

// SessionResolver hands out the session used for one refresh.
type SessionResolver interface {
	ResolveSession(ctx context.Context) (*Session, error)
}

// Synchronizer runs refresh cycles: query the provider, extract the
// matches and publish them into the store.  At most one cycle runs at a
// time; a cycle attempted while another is running is dropped.
type Synchronizer struct {
	store       *SnapshotStore
	credentials SessionResolver
	newProvider ProviderFactory
	logger      *zap.SugaredLogger
	maxResults  int64
	location    *time.Location
	now         func() time.Time

	running atomic.Bool
}

// NewSynchronizer creates a Synchronizer publishing into store.
func NewSynchronizer(store *SnapshotStore, credentials SessionResolver, newProvider ProviderFactory,
	logger *zap.SugaredLogger, maxResults int64, location *time.Location) *Synchronizer {
	if location == nil {
		location = time.UTC
	}
	return &Synchronizer{
		store:       store,
		credentials: credentials,
		newProvider: newProvider,
		logger:      logger,
		maxResults:  maxResults,
		location:    location,
		now:         time.Now,
	}
}

// Refresh runs one cycle.  A non-empty filterOverride replaces the
// requested filter for this cycle.  Failures are logged and reported in
// the outcome; they are never returned as errors.
func (s *Synchronizer) Refresh(ctx context.Context, filterOverride string) RefreshOutcome {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debugw("refresh dropped", "reason", ReasonBusy)
		return RefreshOutcome{Status: RefreshSkipped, Reason: ReasonBusy}
	}
	defer s.running.Store(false)

	cycle := uuid.NewString()
	log := s.logger.With("cycle", cycle)

	session, err := s.credentials.ResolveSession(ctx)
	if err != nil {
		s.store.markDisconnected()
		switch {
		case errors.Is(err, ErrUnauthorized):
			log.Infow("refresh skipped, mailbox not authorized yet")
			return RefreshOutcome{Status: RefreshSkipped, Reason: ReasonUnauthorized}
		case errors.Is(err, ErrConfigurationMissing):
			log.Warnf("refresh skipped: %+v", err)
			return RefreshOutcome{Status: RefreshSkipped, Reason: ReasonConfigurationMissing}
		default:
			log.Errorf("failed to resolve session: %+v", err)
			return RefreshOutcome{Status: RefreshSkipped, Reason: err.Error()}
		}
	}

	filter := sanitizeFilter(filterOverride)
	if filter == "" {
		filter = s.store.RequestedFilter()
	}
	query := buildQuery(filter)

	log.Infow("refreshing", "query", query)

	provider, err := s.newProvider(ctx, session)
	if err != nil {
		err = errors.Mark(err, ErrProviderRequestFailed)
		log.Errorf("refresh failed: %+v", err)
		return RefreshOutcome{Status: RefreshFailed, Reason: err.Error()}
	}

	ids, err := provider.ListMessageIDs(ctx, query, s.maxResults)
	if err != nil {
		err = errors.Mark(err, ErrProviderRequestFailed)
		log.Errorf("refresh failed: %+v", err)
		return RefreshOutcome{Status: RefreshFailed, Reason: err.Error()}
	}
	log.Infow("listed matching messages", "count", len(ids))

	records := make([]NormalizedMessage, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		raw, err := provider.GetMessage(ctx, id)
		if err != nil {
			log.Warnf("skipping message %s: %+v", id, errors.Mark(err, ErrMessageParseFailed))
			continue
		}
		if raw == nil {
			log.Warnw("skipping empty message", "id", id)
			continue
		}
		if raw.ID == "" {
			raw.ID = id
		}
		records = append(records, extract(raw, filter, s.location))
	}

	sortByTimestamp(records)
	s.store.publish(records, filter, s.now())

	log.Infow("refresh succeeded",
		"filter", take(filter, 40),
		"records", len(records))
	return RefreshOutcome{Status: RefreshSucceeded, RecordCount: len(records)}
}
