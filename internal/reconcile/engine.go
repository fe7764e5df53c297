// Package reconcile implements the owner-authoritative policy: attribute
// changes authored by the owner are persisted as the new intended state,
// changes authored by anyone else are pushed back to the stored value.
package reconcile

import (
	"context"
	"time"

	"keepbot/internal/logging"
	"keepbot/internal/messenger"
	"keepbot/internal/store"
)

// Engine consumes change events and enforces the stored state. It holds no
// state of its own beyond wiring; the store is the single source of truth.
type Engine struct {
	store          *store.Store
	client         messenger.Client
	ownerID        string
	correctTimeout time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCorrectTimeout bounds each corrective client call. Zero disables the
// bound and a hung call stalls the loop.
func WithCorrectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.correctTimeout = d }
}

// New returns an engine enforcing ownerID's stored preferences.
func New(st *store.Store, client messenger.Client, ownerID string, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		client:         client,
		ownerID:        ownerID,
		correctTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes events sequentially until ctx is cancelled or the channel
// closes. Each event is handled to completion before the next is dequeued.
// Storage failures abort the loop; corrective failures do not.
func (e *Engine) Run(ctx context.Context, events <-chan messenger.Event) error {
	log := logging.Get(logging.CategoryReconcile)
	log.Infow("event loop started", "owner", e.ownerID)

	for {
		select {
		case <-ctx.Done():
			log.Infow("event loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				log.Info("event stream closed")
				return nil
			}
			if err := e.HandleEvent(ctx, ev); err != nil {
				log.Errorw("event handling failed", "error", err)
				return err
			}
		}
	}
}

// HandleEvent applies the authority policy to a single event.
func (e *Engine) HandleEvent(ctx context.Context, ev messenger.Event) error {
	switch ev := ev.(type) {
	case messenger.ColorChange:
		return e.handleColor(ctx, ev)
	case messenger.EmojiChange:
		return e.handleEmoji(ctx, ev)
	case messenger.NicknameChange:
		return e.handleNickname(ctx, ev)
	default:
		logging.Get(logging.CategoryReconcile).Debugw("ignoring unknown event", "event", ev)
		return nil
	}
}

func (e *Engine) handleColor(ctx context.Context, ev messenger.ColorChange) error {
	log := logging.Get(logging.CategoryReconcile)

	old, err := e.store.Color(ev.ThreadID)
	if err != nil {
		return err
	}
	if ev.Color == old {
		return nil
	}
	// Color is only enforced in one-to-one threads.
	if ev.Kind != messenger.ThreadUser {
		log.Debugw("ignoring color change in ineligible thread", "thread", ev.ThreadID, "kind", ev.Kind.String())
		return nil
	}

	if ev.AuthorID == e.ownerID {
		log.Infow("owner changed thread color", "thread", ev.ThreadID, "color", ev.Color)
		return e.store.SetColor(ev.ThreadID, ev.Color)
	}

	log.Infow("reverting thread color", "thread", ev.ThreadID, "author", ev.AuthorID, "observed", ev.Color, "restoring", old)
	e.correct(ctx, func(cctx context.Context) error {
		return e.client.SetThreadColor(cctx, old, ev.ThreadID)
	})
	return nil
}

func (e *Engine) handleEmoji(ctx context.Context, ev messenger.EmojiChange) error {
	log := logging.Get(logging.CategoryReconcile)

	old, err := e.store.Emoji(ev.ThreadID)
	if err != nil {
		return err
	}
	if ev.Emoji == old {
		return nil
	}
	if ev.Kind != messenger.ThreadUser {
		log.Debugw("ignoring emoji change in ineligible thread", "thread", ev.ThreadID, "kind", ev.Kind.String())
		return nil
	}

	if ev.AuthorID == e.ownerID {
		log.Infow("owner changed thread emoji", "thread", ev.ThreadID, "emoji", ev.Emoji)
		return e.store.SetEmoji(ev.ThreadID, ev.Emoji)
	}

	log.Infow("reverting thread emoji", "thread", ev.ThreadID, "author", ev.AuthorID, "observed", ev.Emoji, "restoring", old)
	e.correct(ctx, func(cctx context.Context) error {
		return e.client.SetThreadEmoji(cctx, old, ev.ThreadID)
	})
	return nil
}

func (e *Engine) handleNickname(ctx context.Context, ev messenger.NicknameChange) error {
	log := logging.Get(logging.CategoryReconcile)

	old, err := e.store.Nickname(ev.ThreadID, ev.MemberID)
	if err != nil {
		return err
	}
	if ev.Nickname == old {
		return nil
	}
	// Nicknames are enforced in one-to-one threads, and in group threads
	// only when the renamed member is the owner.
	eligible := ev.Kind == messenger.ThreadUser ||
		(ev.Kind == messenger.ThreadGroup && ev.MemberID == e.ownerID)
	if !eligible {
		log.Debugw("ignoring nickname change in ineligible thread", "thread", ev.ThreadID, "member", ev.MemberID, "kind", ev.Kind.String())
		return nil
	}

	if ev.AuthorID == e.ownerID {
		log.Infow("owner changed nickname", "thread", ev.ThreadID, "member", ev.MemberID, "nickname", ev.Nickname)
		return e.store.SetNickname(ev.ThreadID, ev.MemberID, ev.Nickname)
	}

	log.Infow("reverting nickname", "thread", ev.ThreadID, "member", ev.MemberID, "author", ev.AuthorID, "observed", ev.Nickname, "restoring", old)
	e.correct(ctx, func(cctx context.Context) error {
		return e.client.SetNickname(cctx, old, ev.MemberID, ev.ThreadID, ev.Kind)
	})
	return nil
}

// correct runs a corrective client call under the configured timeout. A
// failure is logged and dropped: the store already holds the intended
// value, so the next drift on this key retries the correction.
func (e *Engine) correct(ctx context.Context, apply func(context.Context) error) {
	cctx := ctx
	if e.correctTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.correctTimeout)
		defer cancel()
	}
	if err := apply(cctx); err != nil {
		logging.Get(logging.CategoryReconcile).Warnw("corrective call failed, will retry on next drift", "error", err)
	}
}
