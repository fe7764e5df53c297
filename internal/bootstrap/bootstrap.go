// Package bootstrap sequences startup authentication: resume a stored
// session when one exists, fall back to a fresh credential login, and
// persist the resulting session state when it changed.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"

	"keepbot/internal/logging"
	"keepbot/internal/messenger"
	"keepbot/internal/store"
)

// Credentials holds the owner account's login identity.
type Credentials struct {
	Email    string
	Password string
}

// Run authenticates and returns the established session. Any authentication
// failure is fatal to startup; the caller must not proceed into the event
// loop without a session.
func Run(ctx context.Context, st *store.Store, client messenger.Client, creds Credentials) (*messenger.Session, error) {
	log := logging.Get(logging.CategorySession)

	stored, err := st.Session(creds.Email)
	if err != nil {
		return nil, err
	}

	var sess *messenger.Session
	if stored != nil {
		log.Infow("resuming stored session", "email", creds.Email)
		sess, err = client.Resume(ctx, creds.Email, creds.Password, stored)
		if err != nil {
			log.Warnw("session resume failed, attempting fresh login", "error", err)
			sess, err = client.Login(ctx, creds.Email, creds.Password)
		}
	} else {
		log.Infow("no stored session, performing fresh login", "email", creds.Email)
		sess, err = client.Login(ctx, creds.Email, creds.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	current, err := client.SessionState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session state: %w", err)
	}

	if !bytes.Equal(current, stored) {
		if err := st.SaveSession(sess.UserID, creds.Email, creds.Password, current); err != nil {
			return nil, err
		}
		log.Infow("session state persisted", "user", sess.UserID)
	} else {
		log.Debugw("session state unchanged, skipping write", "user", sess.UserID)
	}

	return sess, nil
}
