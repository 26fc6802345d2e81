package authn

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/mcoot/marketid/internal/model"
)

// Client holds one signed-in session against the Service and delivers session
// events to its listeners in order, on its own goroutine
type Client struct {
	service *Service
	logger  *slog.Logger

	mu           sync.Mutex
	token        string
	subscription *Subscription
	listeners    map[int]func(model.SessionEvent)
	nextListener int

	events    chan model.SessionEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a signed-out client and starts its dispatcher
func NewClient(service *Service, logger *slog.Logger) *Client {
	c := &Client{
		service:   service,
		logger:    logger.With(slog.String("component", "authn-client")),
		listeners: make(map[int]func(model.SessionEvent)),
		events:    make(chan model.SessionEvent, 64),
		done:      make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Token returns the current access token, or "" when signed out
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// CurrentSession returns the signed-in principal, or nil when there is no valid session
func (c *Client) CurrentSession(_ context.Context) (*model.Principal, error) {
	token := c.Token()
	if token == "" {
		return nil, nil
	}

	principal, err := c.service.Validate(token)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSession) {
			c.dropSession(token)
			return nil, nil
		}
		return nil, err
	}
	return principal, nil
}

// Subscribe registers fn for session events until the returned func is called
func (c *Client) Subscribe(fn func(model.SessionEvent)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SignIn authenticates and replaces any existing session
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Principal, error) {
	session, err := c.service.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if old := c.Token(); old != "" {
		_ = c.service.Revoke(old)
	}
	c.adopt(session)
	c.emit(model.SessionEvent{Kind: model.EventSignedIn, Principal: session.Principal.Clone()})
	return session.Principal, nil
}

// SignOut revokes the current token. Signing out with no session is not an error.
func (c *Client) SignOut(_ context.Context) error {
	token := c.Token()
	if token != "" {
		if err := c.service.Revoke(token); err != nil && !errors.Is(err, model.ErrInvalidSession) {
			return err
		}
		c.dropSession(token)
	}
	c.emit(model.SessionEvent{Kind: model.EventSignedOut})
	return nil
}

// SignUp creates an account without signing in
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Principal, error) {
	return c.service.SignUp(ctx, email, password, metadata)
}

// RefreshSession swaps the current token for one minted from the latest records
func (c *Client) RefreshSession(ctx context.Context) (*model.Principal, error) {
	token := c.Token()
	if token == "" {
		return nil, model.ErrNotSignedIn
	}

	session, err := c.service.Reissue(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSession) {
			c.dropSession(token)
		}
		return nil, err
	}

	c.adopt(session)
	c.emit(model.SessionEvent{Kind: model.EventTokenRefreshed, Principal: session.Principal.Clone()})
	return session.Principal, nil
}

// Close drops the feed subscription and stops the dispatcher
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sub := c.subscription
		c.subscription = nil
		c.mu.Unlock()
		c.service.feed.Unsubscribe(sub)
		close(c.done)
	})
}

// adopt installs session as current, moving the feed subscription if the user changed
func (c *Client) adopt(session *Session) {
	c.mu.Lock()
	c.token = session.Token
	var stale *Subscription
	if c.subscription == nil || c.subscription.userID != session.Principal.ID {
		stale = c.subscription
		c.subscription = nil
	}
	needSub := c.subscription == nil
	c.mu.Unlock()

	c.service.feed.Unsubscribe(stale)
	if !needSub {
		return
	}

	sub := c.service.feed.Subscribe(session.Principal.ID)
	if sub == nil {
		return
	}
	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()
	go c.forward(sub)
}

// dropSession clears the session if token is still the current one
func (c *Client) dropSession(token string) {
	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		return
	}
	c.token = ""
	sub := c.subscription
	c.subscription = nil
	c.mu.Unlock()

	c.service.feed.Unsubscribe(sub)
}

// forward relays feed events for sub until it is closed
func (c *Client) forward(sub *Subscription) {
	for ev := range sub.Events() {
		if ev.Kind == model.EventSignedOut {
			c.dropSession(c.Token())
		}
		c.emit(ev)
	}
}

func (c *Client) emit(ev model.SessionEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) dispatch() {
	for {
		select {
		case ev := <-c.events:
			c.deliver(ev)
		case <-c.done:
			return
		}
	}
}

func (c *Client) deliver(ev model.SessionEvent) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	fns := make([]func(model.SessionEvent), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("session listener panicked",
						slog.String("kind", string(ev.Kind)),
						slog.Any("panic", r))
				}
			}()
			fn(model.SessionEvent{Kind: ev.Kind, Principal: ev.Principal.Clone()})
		}()
	}
}
