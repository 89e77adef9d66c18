// Package service implements identity consolidation: each resolve call runs
// one transactional pass of lookup, primary election, cluster merge,
// materialization, and view construction.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"identity-link/internal/audit"
	"identity-link/internal/contact/lock"
	"identity-link/internal/contact/metrics"
	"identity-link/internal/contact/models"
	"identity-link/internal/contact/store"
	pkgerrors "identity-link/pkg/domain-errors"
	"identity-link/pkg/platform/sentinel"
)

// Service resolves customer identities across partial contact submissions.
type Service struct {
	tx      store.Tx
	locker  lock.Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithLocker adds a cross-replica identifier lock around the resolution
// transaction. Single-replica deployments rely on the store transaction
// alone.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func New(tx store.Tx, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		logger: slog.Default(),
		tracer: otel.Tracer("identity-link/contact"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolution accumulates one pass's mutations so audit events publish only
// after the transaction commits.
type resolution struct {
	view    models.ConsolidatedView
	outcome string
	events  []audit.Event
}

// Resolve consolidates the submitted (email, phone) observation into its
// identity cluster and reports the cluster's consolidated view. At least one
// identifier must be present. Repeating the identical submission is
// idempotent.
func (s *Service) Resolve(ctx context.Context, email, phone string) (models.ConsolidatedView, error) {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return models.ConsolidatedView{}, pkgerrors.New(pkgerrors.CodeBadRequest, "either email or phoneNumber must be provided")
	}

	ctx, span := s.tracer.Start(ctx, "contact.Resolve")
	defer span.End()
	start := time.Now()

	keys := lockKeys(email, phone)
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, keys)
		if err != nil {
			return models.ConsolidatedView{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "identifier lock unavailable")
		}
		defer release()
	}
	ctx = store.WithLockKeys(ctx, keys)

	var res resolution
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		// The transaction may retry; start from a clean slate each attempt.
		res = resolution{}
		return s.resolveInTx(ctx, st, email, phone, &res)
	})
	if err != nil {
		return models.ConsolidatedView{}, translateStoreErr(err)
	}

	// Post-commit: the trail must reflect only durable mutations.
	for _, event := range res.events {
		s.audit.Emit(ctx, event)
	}
	s.metrics.ObserveResolution(res.outcome, time.Since(start).Seconds())
	return res.view, nil
}

func (s *Service) resolveInTx(ctx context.Context, st store.Store, email, phone string, res *resolution) error {
	matched, err := st.FindMatching(ctx, email, phone)
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		created, err := st.Create(ctx, models.ContactDraft{
			Email:          email,
			PhoneNumber:    phone,
			LinkPrecedence: models.LinkPrecedencePrimary,
		})
		if err != nil {
			return err
		}
		res.view = buildView(created, nil)
		res.outcome = metrics.OutcomeCreatedPrimary
		res.events = append(res.events, audit.Event{
			Action:    audit.ActionContactCreated,
			ContactID: created.ID,
			PrimaryID: created.ID,
		})
		return nil
	}

	primary, err := s.electPrimary(ctx, st, matched)
	if err != nil {
		return err
	}

	demoted, err := s.mergeClusters(ctx, st, matched, primary, res)
	if err != nil {
		return err
	}

	created, err := s.materialize(ctx, st, matched, primary, email, phone)
	if err != nil {
		return err
	}
	if created != nil {
		res.events = append(res.events, audit.Event{
			Action:    audit.ActionContactLinked,
			ContactID: created.ID,
			PrimaryID: primary.ID,
		})
	}

	// Read-only view stage over the post-mutation record set; no aliasing of
	// the write stage's slices.
	cluster, err := st.FindByLinkedID(ctx, primary.ID)
	if err != nil {
		return err
	}
	res.view = buildView(primary, cluster)

	switch {
	case demoted > 0:
		res.outcome = metrics.OutcomeMerged
	case created != nil:
		res.outcome = metrics.OutcomeCreatedSecondary
	default:
		res.outcome = metrics.OutcomeNoop
	}
	return nil
}

// electPrimary picks the earliest-created primary from the matched set, with
// ascending id as tiebreak. A matched set of only secondaries is routine: a
// secondary stores both submitted fields, so a later submission can repeat a
// value that lives solely on it. The cluster's primary is then reached through
// the secondary's link. Only a broken link counts as an invariant violation.
func (s *Service) electPrimary(ctx context.Context, st store.Store, matched []*models.Contact) (*models.Contact, error) {
	var best *models.Contact
	for _, c := range matched {
		if !c.IsPrimary() {
			continue
		}
		if best == nil || c.CreatedAt.Before(best.CreatedAt) ||
			(c.CreatedAt.Equal(best.CreatedAt) && c.ID < best.ID) {
			best = c
		}
	}
	if best != nil {
		return best, nil
	}

	for _, c := range matched {
		if c.LinkedID == nil {
			s.metrics.IncInvariantViolation()
			s.logger.WarnContext(ctx, "secondary contact has no link",
				"contact_id", c.ID,
			)
			continue
		}
		linked, err := st.FindByID(ctx, *c.LinkedID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.metrics.IncInvariantViolation()
				s.logger.WarnContext(ctx, "secondary contact links to missing contact",
					"contact_id", c.ID,
					"linked_id", *c.LinkedID,
				)
				continue
			}
			return nil, err
		}
		if !linked.IsPrimary() {
			s.metrics.IncInvariantViolation()
			s.logger.WarnContext(ctx, "secondary contact links to non-primary contact",
				"contact_id", c.ID,
				"linked_id", linked.ID,
			)
			continue
		}
		return linked, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "matched contacts have no resolvable primary")
}

// mergeClusters demotes every matched primary newer than the elected one and
// re-points its direct dependents at the survivor. Propagation is one pass
// per demoted primary; anything deeper is a data anomaly and is logged and
// skipped, never recursed into.
func (s *Service) mergeClusters(ctx context.Context, st store.Store, matched []*models.Contact, primary *models.Contact, res *resolution) (int, error) {
	demoted := 0
	for _, c := range matched {
		if !c.IsPrimary() || c.ID == primary.ID {
			continue
		}

		deps, err := st.FindByLinkedID(ctx, c.ID)
		if err != nil {
			return demoted, err
		}

		c.LinkPrecedence = models.LinkPrecedenceSecondary
		c.LinkedID = &primary.ID
		if err := st.Save(ctx, c); err != nil {
			return demoted, err
		}
		demoted++
		s.metrics.AddDemotions(1)

		relinkIDs := make([]int64, 0, len(deps))
		for _, dep := range deps {
			if dep.IsPrimary() {
				s.metrics.IncInvariantViolation()
				s.logger.WarnContext(ctx, "linked contact marked primary, skipping relink",
					"contact_id", dep.ID,
					"demoted_id", c.ID,
				)
				continue
			}
			relinkIDs = append(relinkIDs, dep.ID)
		}
		if len(relinkIDs) > 0 {
			if err := st.Relink(ctx, relinkIDs, primary.ID); err != nil {
				return demoted, err
			}
			s.metrics.AddRelinked(len(relinkIDs))
		}

		res.events = append(res.events, audit.Event{
			Action:      audit.ActionClusterMerged,
			ContactID:   c.ID,
			PrimaryID:   primary.ID,
			RelinkedIDs: relinkIDs,
		})
	}
	return demoted, nil
}

// materialize creates a secondary when the submission carries a field value
// not present on any matched record. The new record stores both submitted
// fields as given, even when one duplicates an existing value.
func (s *Service) materialize(ctx context.Context, st store.Store, matched []*models.Contact, primary *models.Contact, email, phone string) (*models.Contact, error) {
	newInfo := false
	if email != "" && !anyHasEmail(matched, email) {
		newInfo = true
	}
	if phone != "" && !anyHasPhone(matched, phone) {
		newInfo = true
	}
	if !newInfo {
		return nil, nil
	}
	return st.Create(ctx, models.ContactDraft{
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       &primary.ID,
		LinkPrecedence: models.LinkPrecedenceSecondary,
	})
}

func anyHasEmail(contacts []*models.Contact, email string) bool {
	for _, c := range contacts {
		if c.Email == email {
			return true
		}
	}
	return false
}

func anyHasPhone(contacts []*models.Contact, phone string) bool {
	for _, c := range contacts {
		if c.PhoneNumber == phone {
			return true
		}
	}
	return false
}

// lockKeys normalizes the request identifiers into lock/shard keys.
func lockKeys(email, phone string) []string {
	var keys []string
	if email != "" {
		keys = append(keys, "identity-link:email:"+email)
	}
	if phone != "" {
		keys = append(keys, "identity-link:phone:"+phone)
	}
	return keys
}

// translateStoreErr maps store sentinels to domain errors; coded errors pass
// through unchanged.
func translateStoreErr(err error) error {
	var de *pkgerrors.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return pkgerrors.Wrap(err, pkgerrors.CodeConflict, "conflicting concurrent resolution")
	case errors.Is(err, sentinel.ErrUnavailable):
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "contact store unavailable")
	default:
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "resolution failed")
	}
}
