// Package cdp implements browser.Session against a chromium instance over
// the DevTools protocol. Element sets are kept as javascript expression
// chains and only evaluated on the terminal operations, so no element
// handle ever outlives a navigation.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"heytelecom-backend/lib/browser"
	"heytelecom-backend/lib/htmlutil"

	"github.com/gorilla/websocket"
)

type wireRequest struct {
	Id     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type wireResponse struct {
	Id     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	nextId  int64
	pending map[int64]chan wireResponse
	closed  bool
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:      ws,
		pending: map[int64]chan wireResponse{},
	}
	go c.readLoop()
	return c
}

func (c *conn) readLoop() {
	for {
		var res wireResponse
		err := c.ws.ReadJSON(&res)
		if err != nil {
			c.mu.Lock()
			c.closed = true
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}
		if res.Id == 0 {
			// protocol event, nothing subscribes to those
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[res.Id]
		if ok {
			delete(c.pending, res.Id)
		}
		c.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

func (c *conn) call(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("devtools connection is closed")
	}
	c.nextId++
	id := c.nextId
	ch := make(chan wireResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(wireRequest{Id: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return fmt.Errorf("devtools connection closed mid-call: %s", method)
		}
		if res.Error != nil {
			return fmt.Errorf("%s: %s (%d)", method, res.Error.Message, res.Error.Code)
		}
		if out != nil {
			return json.Unmarshal(res.Result, out)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *conn) close() error {
	return c.ws.Close()
}

type Session struct {
	conn    *conn
	cleanup func()
}

var _ browser.Session = (*Session)(nil)

type evalResult struct {
	Result struct {
		Type    string          `json:"type"`
		Value   json.RawMessage `json:"value"`
		Subtype string          `json:"subtype"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception *struct {
			Description string `json:"description"`
		} `json:"exception"`
	} `json:"exceptionDetails"`
}

// eval runs an expression in the page and unmarshals its json value into
// out. A nil out discards the value.
func (s *Session) eval(ctx context.Context, expr string, out any) error {
	var res evalResult
	err := s.conn.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	}, &res)
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		detail := res.ExceptionDetails.Text
		if res.ExceptionDetails.Exception != nil {
			detail = res.ExceptionDetails.Exception.Description
		}
		return fmt.Errorf("page script threw: %s", detail)
	}
	if out == nil || res.Result.Value == nil {
		return nil
	}
	return json.Unmarshal(res.Result.Value, out)
}

func (s *Session) Goto(ctx context.Context, url string) error {
	var res struct {
		ErrorText string `json:"errorText"`
	}
	err := s.conn.call(ctx, "Page.navigate", map[string]any{"url": url}, &res)
	if err != nil {
		return err
	}
	if res.ErrorText != "" {
		return fmt.Errorf("navigation to %s failed: %s", url, res.ErrorText)
	}
	return nil
}

func (s *Session) URL() string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	var href string
	err := s.eval(ctx, "location.href", &href)
	if err != nil {
		slog.Warn("failed to read page location", "err", err)
		return ""
	}
	return href
}

func (s *Session) Locate(selector string) browser.ElementSet {
	return &elements{
		session: s,
		expr:    fmt.Sprintf("Array.from(document.querySelectorAll(%q))", selector),
	}
}

func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return s.poll(ctx, timeout, fmt.Sprintf("waiting for selector %q", selector), func(ctx context.Context) (bool, error) {
		count := s.Locate(selector).Count()
		return count > 0, nil
	})
}

func (s *Session) WaitForURL(ctx context.Context, substring string, timeout time.Duration) error {
	return s.poll(ctx, timeout, fmt.Sprintf("waiting for url containing %q", substring), func(ctx context.Context) (bool, error) {
		return strings.Contains(s.URL(), substring), nil
	})
}

const pollInterval = time.Millisecond * 300

func (s *Session) poll(ctx context.Context, timeout time.Duration, what string, check func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out %s", what)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) Close() error {
	err := s.conn.close()
	if s.cleanup != nil {
		s.cleanup()
	}
	return err
}

type elements struct {
	session *Session
	expr    string
}

func (e *elements) derive(suffix string) *elements {
	return &elements{session: e.session, expr: e.expr + suffix}
}

func (e *elements) Count() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	var count int
	err := e.session.eval(ctx, e.expr+".length", &count)
	if err != nil {
		slog.Warn("failed to count elements", "err", err)
		return 0
	}
	return count
}

func (e *elements) Nth(i int) browser.ElementSet {
	return e.derive(fmt.Sprintf(".slice(%d, %d)", i, i+1))
}

func (e *elements) Locate(selector string) browser.ElementSet {
	return e.derive(fmt.Sprintf(".flatMap((e) => Array.from(e.querySelectorAll(%q)))", selector))
}

func (e *elements) FilterText(substring string) browser.ElementSet {
	return e.derive(fmt.Sprintf(".filter((e) => (e.innerText || '').includes(%q))", substring))
}

func (e *elements) NextSibling() browser.ElementSet {
	return e.derive(".map((e) => e.nextElementSibling).filter((e) => e !== null)")
}

func (e *elements) InnerText() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	var text *string
	expr := fmt.Sprintf("((els) => els.length > 0 ? els[0].innerText : null)(%s)", e.expr)
	err := e.session.eval(ctx, expr, &text)
	if err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("no elements matched")
	}
	return htmlutil.CleanText(*text), nil
}

func (e *elements) Click(ctx context.Context) error {
	var clicked bool
	expr := fmt.Sprintf("((els) => { if (els.length === 0) return false; els[0].click(); return true; })(%s)", e.expr)
	err := e.session.eval(ctx, expr, &clicked)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no elements matched")
	}
	return nil
}

func (e *elements) Fill(ctx context.Context, value string) error {
	var filled bool
	expr := fmt.Sprintf(
		`((els) => {
			if (els.length === 0) return false;
			const el = els[0];
			el.focus();
			el.value = %q;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})(%s)`,
		value, e.expr,
	)
	err := e.session.eval(ctx, expr, &filled)
	if err != nil {
		return err
	}
	if !filled {
		return fmt.Errorf("no elements matched")
	}
	return nil
}
