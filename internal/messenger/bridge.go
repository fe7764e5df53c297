package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"keepbot/internal/logging"
)

// BridgeClient talks to a local platform bridge gateway over HTTP. The
// bridge fronts the real chat platform; keepbot never speaks the platform
// wire protocol itself.
type BridgeClient struct {
	baseURL  string
	httpc    *http.Client
	maxTries int
}

// BridgeOption customizes a BridgeClient.
type BridgeOption func(*BridgeClient)

// WithHTTPClient overrides the underlying HTTP client (tests, proxies).
func WithHTTPClient(c *http.Client) BridgeOption {
	return func(b *BridgeClient) { b.httpc = c }
}

// WithMaxTries bounds authentication attempts on transient transport errors.
func WithMaxTries(n int) BridgeOption {
	return func(b *BridgeClient) {
		if n > 0 {
			b.maxTries = n
		}
	}
}

// NewBridgeClient returns a client for the bridge at baseURL.
func NewBridgeClient(baseURL string, opts ...BridgeOption) *BridgeClient {
	b := &BridgeClient{
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: 90 * time.Second},
		maxTries: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type loginRequest struct {
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	SessionState json.RawMessage `json:"session_state,omitempty"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
}

// Login authenticates with full credentials.
func (b *BridgeClient) Login(ctx context.Context, email, password string) (*Session, error) {
	return b.authenticate(ctx, "/login", loginRequest{Email: email, Password: password})
}

// Resume authenticates by replaying stored session state.
func (b *BridgeClient) Resume(ctx context.Context, email, password string, state []byte) (*Session, error) {
	return b.authenticate(ctx, "/resume", loginRequest{
		Email:        email,
		Password:     password,
		SessionState: json.RawMessage(state),
	})
}

func (b *BridgeClient) authenticate(ctx context.Context, path string, req loginRequest) (*Session, error) {
	log := logging.Get(logging.CategoryClient)

	var lastErr error
	for attempt := 1; attempt <= b.maxTries; attempt++ {
		body, status, err := b.post(ctx, path, req)
		if err != nil {
			lastErr = err
			log.Warnf("auth attempt %d/%d failed: %v", attempt, b.maxTries, err)
			continue
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			// Rejected credentials never improve on retry.
			return nil, fmt.Errorf("%w: bridge returned %d", ErrAuthFailed, status)
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("bridge %s returned status %d", path, status)
			log.Warnf("auth attempt %d/%d failed: %v", attempt, b.maxTries, lastErr)
			continue
		}

		var resp loginResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		if resp.UserID == "" {
			return nil, fmt.Errorf("bridge %s response missing user_id", path)
		}
		return &Session{UserID: resp.UserID}, nil
	}
	return nil, fmt.Errorf("authentication failed after %d attempts: %w", b.maxTries, lastErr)
}

// SessionState returns the bridge's current serialized session blob.
func (b *BridgeClient) SessionState(ctx context.Context) ([]byte, error) {
	body, status, err := b.get(ctx, "/session")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("bridge /session returned status %d", status)
	}
	return body, nil
}

type eventEnvelope struct {
	Type       string `json:"type"` // color | emoji | nickname
	AuthorID   string `json:"author_id"`
	ThreadID   string `json:"thread_id"`
	ThreadKind string `json:"thread_kind"`
	MemberID   string `json:"member_id,omitempty"`
	Value      string `json:"value"`
}

type eventBatch struct {
	Cursor int64           `json:"cursor"`
	Events []eventEnvelope `json:"events"`
}

// Listen long-polls the bridge event feed and delivers decoded events in
// arrival order. The channel is closed when ctx is cancelled.
func (b *BridgeClient) Listen(ctx context.Context) (<-chan Event, error) {
	log := logging.Get(logging.CategoryClient)
	out := make(chan Event)

	go func() {
		defer close(out)
		var cursor int64
		for {
			batch, err := b.pollEvents(ctx, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warnf("event poll failed, retrying: %v", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			cursor = batch.Cursor

			for _, env := range batch.Events {
				ev, ok := decodeEvent(env)
				if !ok {
					log.Debugf("dropping unrecognized event type %q", env.Type)
					continue
				}
				log.Debugw("event received",
					"id", uuid.NewString(),
					"type", env.Type,
					"thread", env.ThreadID,
					"author", env.AuthorID,
				)
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *BridgeClient) pollEvents(ctx context.Context, cursor int64) (*eventBatch, error) {
	q := url.Values{"cursor": {strconv.FormatInt(cursor, 10)}}
	body, status, err := b.get(ctx, "/events?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("bridge /events returned status %d", status)
	}
	var batch eventBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode event batch: %w", err)
	}
	return &batch, nil
}

func decodeEvent(env eventEnvelope) (Event, bool) {
	kind := ParseThreadKind(env.ThreadKind)
	switch env.Type {
	case "color":
		return ColorChange{AuthorID: env.AuthorID, ThreadID: env.ThreadID, Kind: kind, Color: env.Value}, true
	case "emoji":
		return EmojiChange{AuthorID: env.AuthorID, ThreadID: env.ThreadID, Kind: kind, Emoji: env.Value}, true
	case "nickname":
		return NicknameChange{
			AuthorID: env.AuthorID,
			ThreadID: env.ThreadID,
			MemberID: env.MemberID,
			Kind:     kind,
			Nickname: env.Value,
		}, true
	default:
		return nil, false
	}
}

type setValueRequest struct {
	Value      string `json:"value"`
	MemberID   string `json:"member_id,omitempty"`
	ThreadKind string `json:"thread_kind,omitempty"`
}

// SetThreadColor re-applies a color to a thread.
func (b *BridgeClient) SetThreadColor(ctx context.Context, color, threadID string) error {
	return b.setValue(ctx, threadID, "color", setValueRequest{Value: color})
}

// SetThreadEmoji re-applies an emoji to a thread.
func (b *BridgeClient) SetThreadEmoji(ctx context.Context, emoji, threadID string) error {
	return b.setValue(ctx, threadID, "emoji", setValueRequest{Value: emoji})
}

// SetNickname re-applies a member's nickname in a thread.
func (b *BridgeClient) SetNickname(ctx context.Context, nickname, memberID, threadID string, kind ThreadKind) error {
	return b.setValue(ctx, threadID, "nickname", setValueRequest{
		Value:      nickname,
		MemberID:   memberID,
		ThreadKind: kind.String(),
	})
}

func (b *BridgeClient) setValue(ctx context.Context, threadID, attribute string, req setValueRequest) error {
	path := fmt.Sprintf("/threads/%s/%s", url.PathEscape(threadID), attribute)
	_, status, err := b.post(ctx, path, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("bridge %s returned status %d", path, status)
	}
	return nil
}

func (b *BridgeClient) post(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *BridgeClient) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return b.do(req)
}

func (b *BridgeClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("bridge request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read bridge response: %w", err)
	}
	return body, resp.StatusCode, nil
}
