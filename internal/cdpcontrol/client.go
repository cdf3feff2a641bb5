package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

type tabSession struct {
	info      PageInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
	prepared  bool   // Runtime domain enabled and bindings installed
}

// BindingHandler receives a page-side binding invocation: the page it came
// from and the raw payload string passed by the page script.
type BindingHandler func(page PageInfo, payload string)

type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu           sync.Mutex
	cdp          *rawCDP
	tabs         map[target.ID]*tabSession
	pageToTarget map[string]target.ID
	unsubscribe  func()

	pageLocksMu sync.Mutex
	pageLocks   map[string]*sync.Mutex

	bindingsMu sync.RWMutex
	bindings   map[string]BindingHandler
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:       cdpURL,
		tabFilter:    strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout:  evalTimeout,
		tabs:         make(map[target.ID]*tabSession),
		pageToTarget: make(map[string]target.ID),
		pageLocks:    make(map[string]*sync.Mutex),
		bindings:     make(map[string]BindingHandler),
	}
}

// RegisterBinding exposes window.<name>(payload) on every matched page and
// routes invocations to fn. Must be called before pages are prepared; late
// registrations only reach sessions attached afterwards.
func (c *Client) RegisterBinding(name string, fn BindingHandler) {
	c.bindingsMu.Lock()
	c.bindings[name] = fn
	c.bindingsMu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	c.unsubscribe = c.cdp.registerEventHandler("Runtime.bindingCalled", c.onBindingCalled)

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for _, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = c.cdp.detachFromTarget(ctx, session.sessionID)
				cancel()
				session.sessionID = ""
				session.prepared = false
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.pageToTarget = make(map[string]target.ID)
}

// ListPages returns the currently open screener tabs, refreshed from the
// browser.
func (c *Client) ListPages(ctx context.Context) ([]PageInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list pages failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	pages := make([]PageInfo, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			pages = append(pages, s.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageID < pages[j].PageID
	})
	slog.Debug("cdpcontrol list pages", "count", len(pages))
	return pages, nil
}

// OpenTab opens a new browser tab at the given URL.
func (c *Client) OpenTab(ctx context.Context, url string) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	targetID, err := cdp.createTarget(ctx, url)
	if err != nil {
		return newError(CodeCDPUnavailable, "open tab failed", err)
	}
	slog.Info("cdpcontrol opened tab", "url", url, "target_id", targetID)
	return nil
}

// EvalOnPage runs a wrapped JS expression on the given page and decodes the
// envelope's data into out. Transient transport failures are retried once
// after reconnecting or refreshing the tab list.
func (c *Client) EvalOnPage(ctx context.Context, pageID, js string, out any) error {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return newError(CodePageNotFound, "page id is required", nil)
	}

	lock := c.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	// First attempt.
	slog.Debug("cdpcontrol eval on page", "page_id", pageID)
	session, info, err := c.resolvePageSession(ctx, pageID)
	if err != nil {
		slog.Warn("cdpcontrol page resolve failed", "page_id", pageID, "error", err)
	} else {
		slog.Debug("cdpcontrol page resolved", "page_id", pageID, "target_id", info.TargetID)
		err = c.evalOnSession(ctx, session, info.TargetID, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	// Retry after recovery.
	slog.Warn("cdpcontrol eval retry after transient failure", "page_id", pageID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "page_id", pageID, "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshTabs(ctx); syncErr != nil {
			slog.Warn("cdpcontrol tab refresh failed during retry", "page_id", pageID, "error", syncErr)
		}
	}

	slog.Debug("cdpcontrol eval on page (retry)", "page_id", pageID)
	session, info, err = c.resolvePageSession(ctx, pageID)
	if err != nil {
		slog.Warn("cdpcontrol page resolve failed (retry)", "page_id", pageID, "error", err)
		return err
	}
	slog.Debug("cdpcontrol page resolved (retry)", "page_id", pageID, "target_id", info.TargetID)
	return c.evalOnSession(ctx, session, info.TargetID, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, targetID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	// Ensure we have a prepared session attached to this target.
	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", targetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.prepared = false
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching and
// installing the registered bindings if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" && session.prepared {
		return session.sessionID, nil
	}

	if session.sessionID == "" {
		sid, err := cdp.attachToTarget(ctx, targetID)
		if err != nil {
			return "", newError(CodeCDPUnavailable, "attach to target failed", err)
		}
		session.sessionID = sid
		slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)
	}

	if err := cdp.enableRuntimeDomain(ctx, session.sessionID); err != nil {
		return "", newError(CodeCDPUnavailable, "enable runtime domain failed", err)
	}
	c.bindingsMu.RLock()
	names := make([]string, 0, len(c.bindings))
	for name := range c.bindings {
		names = append(names, name)
	}
	c.bindingsMu.RUnlock()
	sort.Strings(names)
	for _, name := range names {
		if err := cdp.addBinding(ctx, session.sessionID, name); err != nil {
			return "", newError(CodeCDPUnavailable, "install binding failed", err)
		}
	}
	session.prepared = true
	return session.sessionID, nil
}

// onBindingCalled routes Runtime.bindingCalled events to the registered
// handler, resolving the originating page from the event's session.
func (c *Client) onBindingCalled(sessionID string, params json.RawMessage) {
	var evt struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(params, &evt); err != nil {
		slog.Warn("cdpcontrol bad bindingCalled params", "error", err)
		return
	}

	c.bindingsMu.RLock()
	fn := c.bindings[evt.Name]
	c.bindingsMu.RUnlock()
	if fn == nil {
		return
	}

	info, ok := c.pageBySession(sessionID)
	if !ok {
		slog.Debug("cdpcontrol binding from unknown session", "binding", evt.Name, "session_id", sessionID)
		return
	}
	fn(info, evt.Payload)
}

func (c *Client) pageBySession(sessionID string) (PageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range c.tabs {
		if session == nil {
			continue
		}
		session.mu.Lock()
		match := session.sessionID == sessionID
		info := session.info
		session.mu.Unlock()
		if match {
			return info, true
		}
	}
	return PageInfo{}, false
}

func (c *Client) resolvePageSession(ctx context.Context, pageID string) (*tabSession, PageInfo, error) {
	session, info, found := c.lookupPageSession(pageID)
	if found {
		return session, info, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, PageInfo{}, err
	}

	session, info, found = c.lookupPageSession(pageID)
	if found {
		return session, info, nil
	}

	return nil, PageInfo{}, newError(CodePageNotFound, "page not found: "+pageID, nil)
}

func (c *Client) lookupPageSession(pageID string) (*tabSession, PageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	targetID, ok := c.pageToTarget[pageID]
	if !ok {
		return nil, PageInfo{}, false
	}
	session := c.tabs[targetID]
	if session == nil {
		return nil, PageInfo{}, false
	}
	return session, session.info, true
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]PageInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		expected[t.TargetID] = PageInfo{
			PageID:   pageIDFromTarget(string(t.TargetID)),
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	c.pageToTarget = make(map[string]target.ID, len(c.tabs))
	for targetID, session := range c.tabs {
		if session == nil {
			continue
		}
		c.pageToTarget[session.info.PageID] = targetID
	}

	// Prune page locks for tabs no longer present.
	c.pageLocksMu.Lock()
	for id := range c.pageLocks {
		if _, ok := c.pageToTarget[id]; !ok {
			delete(c.pageLocks, id)
		}
	}
	c.pageLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "pages", len(c.pageToTarget))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) pageLock(pageID string) *sync.Mutex {
	c.pageLocksMu.Lock()
	defer c.pageLocksMu.Unlock()
	m, ok := c.pageLocks[pageID]
	if !ok {
		m = &sync.Mutex{}
		c.pageLocks[pageID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodePageNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// pageIDFromTarget derives the short page identifier from a CDP target ID.
func pageIDFromTarget(targetID string) string {
	if len(targetID) >= 8 {
		return targetID[:8]
	}
	return targetID
}
