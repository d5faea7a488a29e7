package heytelecom

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"heytelecom-backend/lib/browser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/heytelecom")

var ErrLoginFailed = fmt.Errorf("failed to login to your account")

const (
	DefaultBaseUrl = "https://ecare.heytelecom.be"

	productsPath = "/nl/mijn-producten"
	invoicesPath = "/nl/mijn-facturen"

	authHostMarker = "auth.heytelecom.be"
	usageUrlMarker = "gedetailleerd-gebruik"
)

// selectors of the portal's fixed DOM structure
const (
	selSpinner     = "svg.p-progress-spinner"
	selAccountMenu = "span.p-menuitem-text.ng-star-inserted.button-label"

	selLoginByEmail = "a#Login_loginByEmail"
	selLoginEmail   = "input#Login_byEmail_emailAddress"
	selLoginPass    = "input#Login_byEmail_password"
	selLoginSubmit  = "button#Login_byEmail_login"
	selLoginError   = "div.error_msgs"

	selProductItem  = "li.iris-products__item"
	selTariffNumber = "span.iris-products__details-tariff-number"
	selTariffName   = "span.iris-products__details-tariff-name"
	selInfoTitle    = "span.iris-products__details-info-title"
	selUsageLink    = `a.iris-products__link[data-event_category="MyProducts"]`

	selConsumption     = "section.iris-consumption"
	selPeriodRange     = "p.iris-consumption__main-date-range"
	selDataBlock       = "div#consumption-data"
	selFixBlock        = "div#consumption-fix"
	selCallsBlock      = "div#consumption-calls"
	selSmsBlock        = "div#consumption-sms"
	selBlockLimit      = "span.iris-consumption__main-data-limit"
	selBlockUsage      = "span.iris-consumption__main-data-usage strong"
	selBlockLastUpdate = "span.iris-consumption__main-data-update"

	selInvoiceSection = "lib-obe-latest-invoice section.iris-invoice"
	selInvoiceTitle   = "p.iris-invoice__main-data-title"
)

// label texts matched case-sensitively against rendered element text
const (
	textAccountMenu      = "Mijn account"
	labelEasySwitch      = "Nummer Easy Switch"
	labelContractStart   = "Begindatum contract"
	labelPrice           = "Prijs"
	labelInvoiceAmount   = "Bedrag"
	labelInvoiceStatus   = "Status"
	labelInvoiceDate     = "Datum"
	labelInvoiceDueDate  = "Vervaldatum"
	textWrongCredentials = "Verkeerde gebruikersnaam en/of wachtwoord"
)

type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) isEmpty() bool {
	return c.Email == "" && c.Password == ""
}

type ClientOptions struct {
	// BaseUrl defaults to the production portal.
	BaseUrl     string
	Credentials Credentials
	// SettleDelay is the unconditional minimum wait after every
	// navigation before the page is queried.
	SettleDelay time.Duration
	// PollInterval is the spinner re-check interval of the readiness wait.
	PollInterval time.Duration
	// ReadyTimeout bounds one readiness wait.
	ReadyTimeout time.Duration
	// WaitTimeout bounds the individual element/url waits.
	WaitTimeout time.Duration
}

// Client drives one extraction run against a rendered-page session. It is
// not safe for concurrent use, every method mutates the session's single
// current page.
type Client struct {
	session browser.Session
	baseUrl string
	creds   Credentials

	settleDelay  time.Duration
	pollInterval time.Duration
	readyTimeout time.Duration
	waitTimeout  time.Duration
}

func NewClient(session browser.Session, opts ClientOptions) *Client {
	c := &Client{
		session:      session,
		baseUrl:      opts.BaseUrl,
		creds:        opts.Credentials,
		settleDelay:  opts.SettleDelay,
		pollInterval: opts.PollInterval,
		readyTimeout: opts.ReadyTimeout,
		waitTimeout:  opts.WaitTimeout,
	}
	if c.baseUrl == "" {
		c.baseUrl = DefaultBaseUrl
	}
	if c.settleDelay == 0 {
		c.settleDelay = time.Second * 2
	}
	if c.pollInterval == 0 {
		c.pollInterval = time.Millisecond * 300
	}
	if c.readyTimeout == 0 {
		c.readyTimeout = time.Second * 30
	}
	if c.waitTimeout == 0 {
		c.waitTimeout = time.Second * 10
	}
	return c
}

func (c *Client) productsUrl() string {
	return c.baseUrl + productsPath
}

func (c *Client) invoicesUrl() string {
	return c.baseUrl + invoicesPath
}

// waitReady blocks for the minimum settle delay, then polls until no
// loading spinner is left. A timeout is reported but not fatal, the
// extraction steps after it tolerate missing elements anyway.
func (c *Client) waitReady(ctx context.Context) bool {
	select {
	case <-time.After(c.settleDelay):
	case <-ctx.Done():
		return false
	}

	deadline := time.Now().Add(c.readyTimeout)
	for {
		if c.session.Locate(selSpinner).Count() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			slog.WarnContext(ctx, "timed out waiting for loading spinners to disappear")
			return false
		}
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return false
		}
	}
}

// checkAuthenticated looks for the account menu marker and, when present,
// makes sure the session is parked on the product list.
func (c *Client) checkAuthenticated(ctx context.Context) (bool, error) {
	marker := c.session.Locate(selAccountMenu).FilterText(textAccountMenu)
	if marker.Count() == 0 {
		return false, nil
	}
	if c.session.URL() != c.productsUrl() {
		slog.DebugContext(ctx, "authenticated, navigating to product list")
		err := c.session.Goto(ctx, c.productsUrl())
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// Login drives the portal's email login flow, or detects an already
// authenticated session. With no credentials configured the whole flow is
// skipped: the persisted profile is expected to still carry a session.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.creds.isEmpty() {
		slog.InfoContext(ctx, "no credentials configured, relying on persisted session")
		return nil
	}

	err := c.session.Goto(ctx, c.productsUrl())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open landing page")
		return err
	}
	c.waitReady(ctx)

	authed, err := c.checkAuthenticated(ctx)
	if err != nil {
		return err
	}
	if authed {
		slog.DebugContext(ctx, "already logged in")
		return nil
	}

	// unauthenticated visitors get bounced to the external auth host
	err = c.session.WaitForURL(ctx, authHostMarker, c.waitTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "no redirect to auth host")
		return fmt.Errorf("expected redirect to auth host: %w", err)
	}

	err = c.session.WaitForSelector(ctx, selLoginByEmail, c.waitTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "login-by-email entry point not found")
		return err
	}
	err = c.session.Locate(selLoginByEmail).Click(ctx)
	if err != nil {
		return err
	}
	c.waitReady(ctx)

	err = c.session.WaitForSelector(ctx, selLoginEmail, c.waitTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "email field not found")
		return err
	}
	err = c.session.Locate(selLoginEmail).Fill(ctx, c.creds.Email)
	if err != nil {
		return err
	}
	err = c.session.Locate(selLoginPass).Fill(ctx, c.creds.Password)
	if err != nil {
		return err
	}
	err = c.session.Locate(selLoginSubmit).Click(ctx)
	if err != nil {
		return err
	}
	c.waitReady(ctx)

	if c.session.Locate(selLoginError).FilterText(textWrongCredentials).Count() > 0 {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	// optimistic, a slow account menu is not fatal
	err = c.session.WaitForSelector(ctx, selAccountMenu, c.waitTimeout)
	if err != nil {
		slog.WarnContext(ctx, "account menu did not appear after login", "err", err)
	}
	c.waitReady(ctx)

	authed, err = c.checkAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !authed {
		// downstream extraction will simply find no products
		slog.WarnContext(ctx, "login may have failed, account menu marker not found")
	}
	return nil
}

// AccountData runs the full extraction: products with usage, then the
// latest invoice. Extraction misses degrade to sparse output, they never
// fail the run.
func (c *Client) AccountData(ctx context.Context) (AccountData, error) {
	ctx, span := tracer.Start(ctx, "client:AccountData")
	defer span.End()

	err := c.session.Goto(ctx, c.productsUrl())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open product list")
		return AccountData{}, err
	}
	c.waitReady(ctx)

	data := AccountData{
		Products:      c.extractProducts(ctx),
		LatestInvoice: c.extractLatestInvoice(ctx),
	}
	return data, nil
}
