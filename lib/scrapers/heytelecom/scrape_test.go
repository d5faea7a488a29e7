package heytelecom

import (
	"context"
	"fmt"
	"testing"
	"time"

	"heytelecom-backend/lib/browser/domtest"
	"heytelecom-backend/lib/telemetry"
	"heytelecom-backend/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	testProductsUrl = DefaultBaseUrl + productsPath
	testInvoicesUrl = DefaultBaseUrl + invoicesPath
	testUsageUrl    = DefaultBaseUrl + "/nl/gedetailleerd-gebruik/0470112233"

	testAuthUrl      = "https://auth.heytelecom.be/login"
	testAuthEmailUrl = "https://auth.heytelecom.be/login/email"
)

const accountMenuHtml = `<span class="p-menuitem-text ng-star-inserted button-label">Mijn account</span>`

const productsPage = `<html><body>` + accountMenuHtml + `
<ul>
	<li class="iris-products__item">
		<span class="iris-products__details-tariff-number">0470 11 22 33</span>
		<span class="iris-products__details-tariff-name">hey! Mobile 5GB</span>
		<div>
			<span class="iris-products__details-info-title">Begindatum contract</span>
			<span>01.09.2023</span>
		</div>
		<div>
			<span class="iris-products__details-info-title">Prijs</span>
			<span>12 €/maand</span>
		</div>
		<a class="iris-products__link" data-event_category="MyProducts"
			href="/nl/gedetailleerd-gebruik/0470112233">Gedetailleerd gebruik</a>
	</li>
</ul>
</body></html>`

const usagePage = `<html><body>
<section class="iris-consumption">
	<p class="iris-consumption__main-date-range">Van 11/10/2025 tot 11/11/2025</p>
	<div id="consumption-data">
		<span class="iris-consumption__main-data-usage"><strong>2.25 GB</strong></span>
		<span class="iris-consumption__main-data-limit">van je 5 GB</span>
		<span class="iris-consumption__main-data-update">Laatste update : 03/11 17:54</span>
	</div>
	<div id="consumption-calls">
		<span class="iris-consumption__main-data-usage"><strong>154 min</strong></span>
		<span class="iris-consumption__main-data-limit">Onbeperkt</span>
	</div>
	<div id="consumption-sms">
		<span class="iris-consumption__main-data-usage"><strong>23 sms</strong></span>
		<span class="iris-consumption__main-data-limit">Onbeperkt</span>
	</div>
</section>
</body></html>`

const invoicesPage = `<html><body>
<lib-obe-latest-invoice><section class="iris-invoice">
	<div><p class="iris-invoice__main-data-title">Bedrag</p><p>5 €</p></div>
	<div><p class="iris-invoice__main-data-title">Status</p><p>Betaald</p></div>
	<div><p class="iris-invoice__main-data-title">Datum</p><p>04.04.2025</p></div>
	<div><p class="iris-invoice__main-data-title">Vervaldatum</p><p>18.04.2025</p></div>
</section></lib-obe-latest-invoice>
</body></html>`

func newTestClient(session *domtest.Session, creds Credentials) *Client {
	return NewClient(session, ClientOptions{
		Credentials:  creds,
		SettleDelay:  time.Millisecond,
		PollInterval: time.Millisecond,
		ReadyTimeout: time.Millisecond * 50,
		WaitTimeout:  time.Millisecond * 50,
	})
}

func TestFullExtraction(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()
	ctx := context.Background()

	session := domtest.NewSession(map[string]string{
		testProductsUrl: productsPage,
		testUsageUrl:    usagePage,
		testInvoicesUrl: invoicesPage,
	})
	client := newTestClient(session, Credentials{})

	require.NoError(t, client.Login(ctx))
	data, err := client.AccountData(ctx)
	require.NoError(t, err)
	result := Assemble(data)

	require.Equal(t, "hey!", result.Provider)
	require.NotEmpty(t, result.Account.LastSync)
	require.Len(t, result.Products, 1)

	lastUpdate := fmt.Sprintf("%d-11-03T17:54:00", timezone.Now().Year())
	expected := ProductView{
		Id:          "mobile_0470112233",
		Type:        "mobile",
		PhoneNumber: "0470 11 22 33",
		Tariff:      "hey! Mobile 5GB",
		Contract: &ContractView{
			StartDate:        "2023-09-01",
			PricePerMonthEur: float64p(12),
		},
		Usage: &UsageSnapshot{
			Period: &UsagePeriod{Start: "2025-10-11", End: "2025-11-11"},
			Data: &UsageCategory{
				Used:       float64p(2.25),
				Limit:      float64p(5),
				LastUpdate: lastUpdate,
			},
			Calls: &UsageCategory{
				Used:      float64p(154),
				Unlimited: true,
			},
			SmsMms: &SmsUsage{
				Used:      intp(23),
				Unlimited: true,
			},
		},
	}
	diff := cmp.Diff(expected, result.Products[0])
	require.Empty(t, diff)

	require.NotNil(t, result.Billing)
	expectedInvoice := InvoiceView{
		InvoiceId: "INV-20250404",
		AmountEur: float64p(5),
		Status:    "betaald",
		Paid:      true,
		Date:      "2025-04-04",
		DueDate:   "2025-04-18",
	}
	diff = cmp.Diff(expectedInvoice, result.Billing.LatestInvoice)
	require.Empty(t, diff)
}

func mobileEntry(phone, linkId, href string) string {
	return fmt.Sprintf(`<li class="iris-products__item">
		<span class="iris-products__details-tariff-number">%s</span>
		<span class="iris-products__details-tariff-name">hey! Mobile</span>
		<a class="iris-products__link" data-event_category="MyProducts" id=%q href=%q>Gebruik</a>
	</li>`, phone, linkId, href)
}

func usageFixture(usedGb string) string {
	return fmt.Sprintf(`<html><body><section class="iris-consumption">
		<div id="consumption-data">
			<span class="iris-consumption__main-data-usage"><strong>%s GB</strong></span>
			<span class="iris-consumption__main-data-limit">van je 10 GB</span>
		</div>
	</section></body></html>`, usedGb)
}

// products keep their usage even when the list comes back in a different
// order after the navigation round trip
func TestReidentificationAcrossReorder(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()
	ctx := context.Background()

	usageAUrl := DefaultBaseUrl + "/nl/gedetailleerd-gebruik/a"
	usageBUrl := DefaultBaseUrl + "/nl/gedetailleerd-gebruik/b"
	entryA := mobileEntry("0470 11 11 11", "usage-a", "/nl/gedetailleerd-gebruik/a")
	entryB := mobileEntry("0480 22 22 22", "usage-b", "/nl/gedetailleerd-gebruik/b")
	pageBeforeClick := "<html><body><ul>" + entryA + entryB + "</ul></body></html>"
	pageAfterClick := "<html><body><ul>" + entryB + entryA + "</ul></body></html>"

	session := domtest.NewSession(map[string]string{
		testProductsUrl: pageBeforeClick,
		usageAUrl:       usageFixture("1"),
		usageBUrl:       usageFixture("2"),
	})
	session.OnClick("usage-a", func(s *domtest.Session) {
		s.SetPage(testProductsUrl, pageAfterClick)
		s.Goto(ctx, usageAUrl)
	})
	session.OnClick("usage-b", func(s *domtest.Session) {
		s.Goto(ctx, usageBUrl)
	})

	client := newTestClient(session, Credentials{})
	require.NoError(t, session.Goto(ctx, testProductsUrl))
	products := client.extractProducts(ctx)

	require.Len(t, products, 2)
	require.Equal(t, "0470 11 11 11", products[0].PhoneNumber)
	require.NotNil(t, products[0].Usage)
	require.NotNil(t, products[0].Usage.Data)
	require.Equal(t, float64(1), *products[0].Usage.Data.Used)

	require.Equal(t, "0480 22 22 22", products[1].PhoneNumber)
	require.NotNil(t, products[1].Usage)
	require.NotNil(t, products[1].Usage.Data)
	require.Equal(t, float64(2), *products[1].Usage.Data.Used)
}

// two products with identical derived identifiers both resolve to the first
// matching entry in document order
func TestIdentifierCollisionFirstMatchWins(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()
	ctx := context.Background()

	usageXUrl := DefaultBaseUrl + "/nl/gedetailleerd-gebruik/x"
	usageYUrl := DefaultBaseUrl + "/nl/gedetailleerd-gebruik/y"
	entry := func(href string) string {
		return fmt.Sprintf(`<li class="iris-products__item">
			<span class="iris-products__details-tariff-name">hey! Internet Start</span>
			<a class="iris-products__link" data-event_category="MyProducts" href=%q>Gebruik</a>
		</li>`, href)
	}
	page := "<html><body><ul>" +
		entry("/nl/gedetailleerd-gebruik/x") + entry("/nl/gedetailleerd-gebruik/y") +
		"</ul></body></html>"

	session := domtest.NewSession(map[string]string{
		testProductsUrl: page,
		usageXUrl:       usageFixture("3"),
		usageYUrl:       usageFixture("7"),
	})
	client := newTestClient(session, Credentials{})
	require.NoError(t, session.Goto(ctx, testProductsUrl))
	products := client.extractProducts(ctx)

	require.Len(t, products, 2)
	for _, p := range products {
		require.Equal(t, ProductIdentifier{Kind: IdentifierTariff, Value: "hey! Internet Start"}, p.Identifier)
		require.NotNil(t, p.Usage)
		require.NotNil(t, p.Usage.Data)
		require.Equal(t, float64(3), *p.Usage.Data.Used)
	}
}

const authPage = `<html><body>
<a id="Login_loginByEmail" href="/login/email">Log in met e-mail</a>
</body></html>`

const authEmailPage = `<html><body>
<input id="Login_byEmail_emailAddress">
<input id="Login_byEmail_password">
<button id="Login_byEmail_login">Log in</button>
</body></html>`

const authErrorPage = `<html><body>
<div class="error_msgs">Verkeerde gebruikersnaam en/of wachtwoord</div>
</body></html>`

func TestLoginWrongCredentials(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()
	ctx := context.Background()

	session := domtest.NewSession(map[string]string{
		testAuthUrl:      authPage,
		testAuthEmailUrl: authEmailPage,
	})
	session.SetRedirect(testProductsUrl, testAuthUrl)
	session.OnClick("Login_byEmail_login", func(s *domtest.Session) {
		s.SetPage(testAuthEmailUrl, authErrorPage)
		s.Goto(ctx, testAuthEmailUrl)
	})

	client := newTestClient(session, Credentials{Email: "user@example.com", Password: "wrong"})
	err := client.Login(ctx)
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, "user@example.com", session.Filled["Login_byEmail_emailAddress"])
	require.Equal(t, "wrong", session.Filled["Login_byEmail_password"])
}

func TestLoginSuccess(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()
	ctx := context.Background()

	session := domtest.NewSession(map[string]string{
		testAuthUrl:      authPage,
		testAuthEmailUrl: authEmailPage,
		testProductsUrl:  productsPage,
	})
	session.SetRedirect(testProductsUrl, testAuthUrl)
	session.OnClick("Login_byEmail_login", func(s *domtest.Session) {
		s.ClearRedirect(testProductsUrl)
		s.Goto(ctx, testProductsUrl)
	})

	client := newTestClient(session, Credentials{Email: "user@example.com", Password: "secret"})
	require.NoError(t, client.Login(ctx))
	require.Equal(t, testProductsUrl, session.URL())
}

func TestLoginSkippedWithoutCredentials(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()

	session := domtest.NewSession(map[string]string{})
	client := newTestClient(session, Credentials{})
	require.NoError(t, client.Login(context.Background()))
	// the persisted-session path never navigates
	require.Equal(t, "", session.URL())
}

func TestLoginAlreadyAuthenticated(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()

	session := domtest.NewSession(map[string]string{
		testProductsUrl: productsPage,
	})
	client := newTestClient(session, Credentials{Email: "user@example.com", Password: "secret"})
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, testProductsUrl, session.URL())
}

func TestAccountDataWithoutInvoice(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:scrapers/heytelecom")()
	ctx := context.Background()

	page := `<html><body><ul><li class="iris-products__item">
		<span class="iris-products__details-tariff-name">hey! TV</span>
	</li></ul></body></html>`
	session := domtest.NewSession(map[string]string{
		testProductsUrl: page,
		testInvoicesUrl: "<html><body></body></html>",
	})
	client := newTestClient(session, Credentials{})

	data, err := client.AccountData(ctx)
	require.NoError(t, err)
	require.Nil(t, data.LatestInvoice)
	require.Len(t, data.Products, 1)
	require.Nil(t, data.Products[0].Usage)

	result := Assemble(data)
	require.Nil(t, result.Billing)
}

func intp(v int) *int {
	return &v
}
