package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fbkclanna/worksync/internal/blobstore"
)

// ErrBusy is returned when a non-expired lease is already held. Callers
// should retry later rather than immediately.
var ErrBusy = errors.New("lease: already held")

// ErrNotHeld is returned when a renew or verify finds the caller's token is
// no longer the current holder. A lost lease mid-operation is fatal for the
// holder: another worker may already be mutating the tree.
var ErrNotHeld = errors.New("lease: not held by this token")

// Manager acquires and maintains leases in a blob store.
type Manager struct {
	store  blobstore.Store
	holder string
	now    func() time.Time
}

// NewManager creates a lease manager. holder is a human-readable identity
// (host and pid) recorded for diagnostics.
func NewManager(store blobstore.Store, holder string) *Manager {
	return &Manager{store: store, holder: holder, now: time.Now}
}

// Acquire takes the lease at key for ttl, failing fast with ErrBusy when a
// live holder exists. An expired record is taken over with a compare-and-
// swap so two takeover attempts cannot both succeed.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	data, err := Marshal(m.record(token, ttl))
	if err != nil {
		return "", err
	}

	obj, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		err = m.store.PutIf(ctx, key, data, blobstore.Condition{IfAbsent: true})
		if errors.Is(err, blobstore.ErrPreconditionFailed) {
			return "", ErrBusy
		}
		if err != nil {
			return "", fmt.Errorf("acquiring lease %s: %w", key, err)
		}
		return token, nil
	case err != nil:
		return "", fmt.Errorf("reading lease %s: %w", key, err)
	}

	current, err := Parse(obj.Data)
	if err != nil {
		return "", err
	}
	if !current.ExpiredAt(m.now()) {
		return "", ErrBusy
	}

	// Crashed holder: take over the expired record.
	err = m.store.PutIf(ctx, key, data, blobstore.Condition{IfETag: obj.ETag})
	if errors.Is(err, blobstore.ErrPreconditionFailed) {
		return "", ErrBusy
	}
	if err != nil {
		return "", fmt.Errorf("taking over lease %s: %w", key, err)
	}
	return token, nil
}

// Renew extends the lease held by token. Long-running holders must renew
// before the TTL elapses.
func (m *Manager) Renew(ctx context.Context, key, token string, ttl time.Duration) error {
	obj, current, err := m.read(ctx, key)
	if err != nil {
		return err
	}
	if current.Token != token || current.ExpiredAt(m.now()) {
		return ErrNotHeld
	}
	data, err := Marshal(m.record(token, ttl))
	if err != nil {
		return err
	}
	err = m.store.PutIf(ctx, key, data, blobstore.Condition{IfETag: obj.ETag})
	if errors.Is(err, blobstore.ErrPreconditionFailed) {
		return ErrNotHeld
	}
	if err != nil {
		return fmt.Errorf("renewing lease %s: %w", key, err)
	}
	return nil
}

// Release drops the lease if token still holds it. The record is expired in
// place with a compare-and-swap so a successor who took over a lapsed lease
// is never clobbered. Returns false when the lease had already expired or
// been taken by someone else.
func (m *Manager) Release(ctx context.Context, key, token string) bool {
	obj, current, err := m.read(ctx, key)
	if err != nil || current.Token != token || current.ExpiredAt(m.now()) {
		return false
	}
	rec := *current
	rec.ExpiresAt = m.now().UTC().Format(time.RFC3339)
	data, err := Marshal(&rec)
	if err != nil {
		return false
	}
	return m.store.PutIf(ctx, key, data, blobstore.Condition{IfETag: obj.ETag}) == nil
}

// Verify confirms token is still the live holder. Mutating primitives call
// this immediately before running; ErrNotHeld must be treated as fatal.
func (m *Manager) Verify(ctx context.Context, key, token string) error {
	_, current, err := m.read(ctx, key)
	if err != nil {
		return err
	}
	if current.Token != token || current.ExpiredAt(m.now()) {
		return ErrNotHeld
	}
	return nil
}

func (m *Manager) read(ctx context.Context, key string) (blobstore.Object, *Record, error) {
	obj, err := m.store.Get(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return blobstore.Object{}, nil, ErrNotHeld
	}
	if err != nil {
		return blobstore.Object{}, nil, fmt.Errorf("reading lease %s: %w", key, err)
	}
	current, err := Parse(obj.Data)
	if err != nil {
		return blobstore.Object{}, nil, err
	}
	return obj, current, nil
}

func (m *Manager) record(token string, ttl time.Duration) *Record {
	now := m.now().UTC()
	return &Record{
		Holder:     m.holder,
		Token:      token,
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  now.Add(ttl).Format(time.RFC3339),
	}
}
