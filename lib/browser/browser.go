package browser

import (
	"context"
	"time"
)

// Session is a handle to one rendered-page context. Navigation mutates the
// single current page, so a Session must never be shared between concurrent
// extraction runs.
type Session interface {
	// Goto navigates the current page and blocks until the navigation
	// has been committed (not until the page has settled).
	Goto(ctx context.Context, url string) error
	// URL reports the current page location.
	URL() string
	// Locate resolves a CSS selector against the current page. The
	// returned set is re-evaluated lazily, element handles are never
	// retained across navigations.
	Locate(selector string) ElementSet
	// WaitForSelector polls until at least one element matches.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// WaitForURL polls until the current location contains the substring.
	WaitForURL(ctx context.Context, substring string, timeout time.Duration) error
	Close() error
}

// ElementSet is an ordered collection of elements matched by a selector
// chain. All query methods are cheap, the DOM is only touched by the
// terminal operations (Count, InnerText, Click, Fill).
type ElementSet interface {
	Count() int
	Nth(i int) ElementSet
	// Locate queries descendants of every element in the set.
	Locate(selector string) ElementSet
	// FilterText keeps elements whose rendered text contains the substring.
	FilterText(substring string) ElementSet
	// NextSibling maps every element to its next element sibling.
	NextSibling() ElementSet
	InnerText() (string, error)
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
}
