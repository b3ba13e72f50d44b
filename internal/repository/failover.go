package repository

import (
	"context"
	"sync/atomic"
	"time"

	"berserk/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// breaker tracks whether the primary store is usable.
type breaker struct {
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

// usePrimary reports whether the next call should go to the primary,
// allowing one probe per recovery interval while down.
func (b *breaker) usePrimary() bool {
	if !b.isDown.Load() {
		return true
	}
	last := time.Unix(0, b.lastCheck.Load())
	if b.now().Sub(last) > recoveryInterval {
		b.lastCheck.Store(b.now().UnixNano())
		return true
	}
	return false
}

func (b *breaker) fail(err error, op string) {
	if !b.isDown.Swap(true) {
		b.logger.Error().Err(err).Str("op", op).Msg("Primary store failed, falling back to memory")
	}
	b.lastCheck.Store(b.now().UnixNano())
}

func (b *breaker) ok() {
	if b.isDown.Swap(false) {
		b.logger.Info().Msg("Primary store recovered")
	}
}

// FailoverDedupStore prefers redis and falls back to memory while redis is unreachable.
type FailoverDedupStore struct {
	primary  domain.DedupStore
	fallback domain.DedupStore
	breaker
}

func NewFailoverDedupStore(primary, fallback domain.DedupStore, logger *zerolog.Logger) *FailoverDedupStore {
	s := &FailoverDedupStore{primary: primary, fallback: fallback}
	s.logger = logger
	s.now = time.Now
	return s
}

func (r *FailoverDedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		claimed, err := r.primary.Claim(ctx, key, ttl)
		if err == nil {
			r.ok()
			return claimed, nil
		}
		r.fail(err, "claim")
	}
	return r.fallback.Claim(ctx, key, ttl)
}

func (r *FailoverDedupStore) Release(ctx context.Context, key string) error {
	// Release both: the key may have been claimed on either side.
	_ = r.fallback.Release(ctx, key)
	if r.usePrimary() {
		err := r.primary.Release(ctx, key)
		if err == nil {
			r.ok()
			return nil
		}
		r.fail(err, "release")
	}
	return nil
}

// FailoverDraftStore does the same for wizard drafts.
type FailoverDraftStore struct {
	primary  domain.DraftStore
	fallback domain.DraftStore
	breaker
}

func NewFailoverDraftStore(primary, fallback domain.DraftStore, logger *zerolog.Logger) *FailoverDraftStore {
	s := &FailoverDraftStore{primary: primary, fallback: fallback}
	s.logger = logger
	s.now = time.Now
	return s
}

func (r *FailoverDraftStore) SaveDraft(ctx context.Context, sessionID string, data []byte) error {
	if r.usePrimary() {
		err := r.primary.SaveDraft(ctx, sessionID, data)
		if err == nil {
			r.ok()
			return nil
		}
		r.fail(err, "save_draft")
	}
	return r.fallback.SaveDraft(ctx, sessionID, data)
}

func (r *FailoverDraftStore) LoadDraft(ctx context.Context, sessionID string) ([]byte, error) {
	if r.usePrimary() {
		data, err := r.primary.LoadDraft(ctx, sessionID)
		if err == nil {
			r.ok()
			if data != nil {
				return data, nil
			}
			return r.fallback.LoadDraft(ctx, sessionID)
		}
		r.fail(err, "load_draft")
	}
	return r.fallback.LoadDraft(ctx, sessionID)
}

func (r *FailoverDraftStore) ClearDraft(ctx context.Context, sessionID string) error {
	_ = r.fallback.ClearDraft(ctx, sessionID)
	if r.usePrimary() {
		err := r.primary.ClearDraft(ctx, sessionID)
		if err == nil {
			r.ok()
			return nil
		}
		r.fail(err, "clear_draft")
	}
	return nil
}
