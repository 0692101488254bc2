package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
	"github.com/dmitrymomot/oauth2client/pkg/logger"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
)

// Reconciler maps provider profiles onto local users.
type Reconciler struct {
	repo       Repository
	mapping    Mapping
	autoCreate bool
	now        func() time.Time
	logger     *slog.Logger
	inst       *instrumentation.Instrumentation
	group      singleflight.Group
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithMapping replaces DefaultMapping.
func WithMapping(m Mapping) ReconcilerOption {
	return func(r *Reconciler) {
		if m.Len() > 0 {
			r.mapping = m
		}
	}
}

// WithAutoCreate toggles creation of unknown users. Default: true
func WithAutoCreate(enabled bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.autoCreate = enabled
	}
}

// WithReconcilerClock overrides the time source for verification timestamps.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReconcilerInstrumentation enables reconcile metrics.
func WithReconcilerInstrumentation(inst *instrumentation.Instrumentation) ReconcilerOption {
	return func(r *Reconciler) {
		if inst != nil {
			r.inst = inst
		}
	}
}

// NewReconciler creates a Reconciler over repo.
func NewReconciler(repo Repository, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		repo:       repo,
		mapping:    DefaultMapping(),
		autoCreate: true,
		now:        time.Now,
		logger:     logger.NewNope(),
		inst:       instrumentation.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mapping returns the active attribute mapping.
func (r *Reconciler) Mapping() Mapping {
	return r.mapping
}

type reconcileResult struct {
	user    User
	created bool
}

// Reconcile finds or creates the local user for profile and persists the mapped
// attributes. A provider-id match wins over an email match.
//
// Concurrent calls for the same identity inside this process share one execution,
// which is not cancelled when the caller that started it goes away.
// Across processes a unique violation on Save triggers one more lookup, and the
// attributes are applied onto the record that won the race.
func (r *Reconciler) Reconcile(ctx context.Context, profile oauth.Profile) (User, error) {
	attrs := r.mapping.Attributes(profile)
	providerID, _ := stringAttr(attrs, r.mapping.IDField())
	email, _ := stringAttr(attrs, r.mapping.EmailField())
	if providerID == "" && email == "" {
		return nil, ErrIncompleteProfile
	}

	key := "id:" + providerID
	if providerID == "" {
		key = "email:" + email
	}

	// The shared execution outlives any single caller; each caller stops
	// waiting on its own cancellation.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.reconcile(shared, attrs, providerID, email, profile.Bool("email_verified"))
	})

	var out singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out = <-ch:
	}
	if out.Err != nil {
		return nil, out.Err
	}

	res := out.Val.(reconcileResult)
	action := "updated"
	if res.created {
		action = "created"
	}
	r.inst.Metrics().RecordUserReconciled(ctx, action)

	return res.user, nil
}

func (r *Reconciler) reconcile(ctx context.Context, attrs Attributes, providerID, email string, verified bool) (reconcileResult, error) {
	created := false

	user, err := r.lookup(ctx, providerID, email)
	switch {
	case errors.Is(err, ErrNotFound):
		if !r.autoCreate {
			return reconcileResult{}, ErrUserNotFound
		}
		user = r.repo.New(ctx)
		created = true
	case err != nil:
		return reconcileResult{}, errors.Join(ErrPersistenceFailed, err)
	}

	if err := r.apply(user, attrs, verified); err != nil {
		return reconcileResult{}, err
	}

	err = r.repo.Save(ctx, user)
	if errors.Is(err, ErrConflict) {
		r.logger.InfoContext(ctx, "identity conflict on save, retrying lookup",
			slog.Bool("created", created),
		)

		user, err = r.lookup(ctx, providerID, email)
		if err != nil {
			return reconcileResult{}, errors.Join(ErrPersistenceFailed, err)
		}
		created = false

		if err := r.apply(user, attrs, verified); err != nil {
			return reconcileResult{}, err
		}
		err = r.repo.Save(ctx, user)
	}
	if err != nil {
		return reconcileResult{}, errors.Join(ErrPersistenceFailed, err)
	}

	return reconcileResult{user: user, created: created}, nil
}

func (r *Reconciler) lookup(ctx context.Context, providerID, email string) (User, error) {
	if providerID != "" {
		u, err := r.repo.FindByProviderID(ctx, r.mapping.IDField(), providerID)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return u, err
		}
	}
	if email != "" {
		return r.repo.FindByEmail(ctx, r.mapping.EmailField(), email)
	}
	return nil, ErrNotFound
}

func (r *Reconciler) apply(u User, attrs Attributes, verified bool) error {
	if err := u.Apply(attrs); err != nil {
		return err
	}
	if verified && !u.EmailVerified() {
		u.MarkEmailVerified(r.now())
	}
	return nil
}

func stringAttr(attrs Attributes, field string) (string, bool) {
	v, ok := attrs[field]
	if !ok {
		return "", false
	}
	s, err := scalarString(v)
	if err != nil {
		return "", false
	}
	return s, s != ""
}
