// Package domtest implements browser.Session on top of goquery documents.
// It exists so the navigation/extraction protocol can be exercised against
// fixture DOMs without a real rendering engine. Click resolution follows
// href attributes (resolved against the current location) or hooks
// registered per element id.
package domtest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"heytelecom-backend/lib/browser"
	"heytelecom-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Session struct {
	pages     map[string]string
	redirects map[string]string
	clicks    map[string]func(*Session)
	current   string
	doc       *goquery.Document
	closed    bool

	// Filled records Fill calls keyed by the target element's id attribute.
	Filled map[string]string
}

func NewSession(pages map[string]string) *Session {
	return &Session{
		pages:     pages,
		redirects: map[string]string{},
		clicks:    map[string]func(*Session){},
		Filled:    map[string]string{},
	}
}

// SetPage registers or replaces a page body.
func (s *Session) SetPage(url, html string) {
	s.pages[url] = html
}

// SetRedirect makes every navigation to `from` land on `to` instead,
// mirroring the portal bouncing unauthenticated visitors to the auth host.
func (s *Session) SetRedirect(from, to string) {
	s.redirects[from] = to
}

func (s *Session) ClearRedirect(from string) {
	delete(s.redirects, from)
}

// OnClick registers a hook invoked when an element with the given id
// attribute is clicked. The hook runs instead of href resolution.
func (s *Session) OnClick(id string, fn func(*Session)) {
	s.clicks[id] = fn
}

func (s *Session) Goto(ctx context.Context, target string) error {
	if s.closed {
		return fmt.Errorf("session is closed")
	}
	if to, ok := s.redirects[target]; ok {
		target = to
	}

	html := s.pages[target]
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	s.current = target
	s.doc = doc
	return nil
}

func (s *Session) URL() string {
	return s.current
}

func (s *Session) Locate(selector string) browser.ElementSet {
	if s.doc == nil {
		return &elements{session: s}
	}
	// the selection is captured against the current document, a later
	// navigation leaves it pointing at the old tree on purpose
	return &elements{session: s, sel: s.doc.Find(selector)}
}

func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if s.doc != nil && len(s.doc.Find(selector).Nodes) > 0 {
		return nil
	}
	return fmt.Errorf("timed out waiting for selector %q", selector)
}

func (s *Session) WaitForURL(ctx context.Context, substring string, timeout time.Duration) error {
	if strings.Contains(s.current, substring) {
		return nil
	}
	return fmt.Errorf("timed out waiting for url containing %q", substring)
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}

type elements struct {
	session *Session
	sel     *goquery.Selection
}

func (e *elements) Count() int {
	if e.sel == nil {
		return 0
	}
	return len(e.sel.Nodes)
}

func (e *elements) Nth(i int) browser.ElementSet {
	if e.sel == nil {
		return e
	}
	return &elements{session: e.session, sel: e.sel.Eq(i)}
}

func (e *elements) Locate(selector string) browser.ElementSet {
	if e.sel == nil {
		return e
	}
	return &elements{session: e.session, sel: e.sel.Find(selector)}
}

func (e *elements) FilterText(substring string) browser.ElementSet {
	if e.sel == nil {
		return e
	}
	filtered := e.sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(htmlutil.CleanText(s.Text()), substring)
	})
	return &elements{session: e.session, sel: filtered}
}

func (e *elements) NextSibling() browser.ElementSet {
	if e.sel == nil {
		return e
	}
	return &elements{session: e.session, sel: e.sel.Next()}
}

func (e *elements) InnerText() (string, error) {
	if e.Count() == 0 {
		return "", fmt.Errorf("no elements matched")
	}
	return htmlutil.CleanText(e.sel.First().Text()), nil
}

func (e *elements) Click(ctx context.Context) error {
	if e.Count() == 0 {
		return fmt.Errorf("no elements matched")
	}
	first := e.sel.First()

	if id, ok := first.Attr("id"); ok {
		if hook, ok := e.session.clicks[id]; ok {
			hook(e.session)
			return nil
		}
	}

	href, ok := first.Attr("href")
	if !ok {
		return nil
	}
	base, err := url.Parse(e.session.current)
	if err != nil {
		return err
	}
	target, err := url.Parse(href)
	if err != nil {
		return err
	}
	return e.session.Goto(ctx, base.ResolveReference(target).String())
}

func (e *elements) Fill(ctx context.Context, value string) error {
	if e.Count() == 0 {
		return fmt.Errorf("no elements matched")
	}
	if id, ok := e.sel.First().Attr("id"); ok {
		e.session.Filled[id] = value
	}
	return nil
}
