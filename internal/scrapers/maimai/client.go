// client.go contains the http side of the scraper: logging into the portal
// and fetching its pages, it does not know what is on the pages.

package maimai

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"maimai-scraper/internal/components/assert"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/config"
	"maimai-scraper/pkg/htmlutil"
	"maimai-scraper/pkg/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_login         = "client.login"
	report_client_fetch         = "client.fetch"
	report_client_show_records  = "client.show-records"
	report_client_session_state = "client.session-state"
)

var (
	ErrMaintenance    = errors.New("server is under maintenance")
	ErrLoginFailed    = errors.New("login failed")
	ErrSessionExpired = errors.New("session expired")
	// ErrPageUnavailable is returned when the portal answers a logged in
	// session with its error page, ex. the detail of a play that has fallen
	// out of the play history.
	ErrPageUnavailable = errors.New("page unavailable")
)

type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond caps the request rate, <= 0 uses the default of 1.
	RequestsPerSecond float64
	// Dump receives a copy of every http exchange when set.
	Dump restyutil.InstrumentOutput
}

// Client is a logged in (or logging in) session with the player portal, it
// implements Pages.
type Client struct {
	endpoints config.Endpoints
	http      *resty.Client
	tel       telemetry.API

	mutex   sync.Mutex
	current string
}

func hostsOf(e config.Endpoints) []string {
	seen := map[string]bool{}
	var hosts []string
	for _, raw := range []string{
		e.LoginPage, e.LoginSubmit, e.Home, e.PlayerData,
		e.Records, e.RecordDetail, e.ScoreListing,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" || seen[u.Hostname()] {
			continue
		}
		seen[u.Hostname()] = true
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

func NewClient(endpoints config.Endpoints, opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(endpoints.LoginPage)
	assert.NotEmptyStr(endpoints.Records)

	scoped := telemetry.NewScopedAPI("maimai_scraper", tel)

	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	if opts.UserAgent != "" {
		httpClient.SetHeader("user-agent", opts.UserAgent)
	}
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(hostsOf(endpoints)...))
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient.SetTimeout(timeout)

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(rps), 1)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, scoped.Scope("http"))
	restyutil.InstrumentClient(httpClient, opts.Dump)

	return &Client{
		endpoints: endpoints,
		http:      httpClient,
		tel:       scoped,
	}, nil
}

// finalUrl is the url a response was served from after redirects.
func finalUrl(res *resty.Response) string {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL.String()
	}
	if res.Request != nil {
		return res.Request.URL
	}
	return ""
}

func isMaintenance(doc *goquery.Document) bool {
	return doc.Find(".main_info").Length() > 0
}

// isLoginForm returns true when the portal served its login form in place
// of the requested page, which only happens once the session is gone.
func isLoginForm(doc *goquery.Document) bool {
	return doc.Find("input[type='password']").Length() > 0
}

// isErrorPage returns true when the request ended up on the portal's error
// page. The portal redirects there both for an expired session and for
// pages it does not have.
func isErrorPage(pageUrl string) bool {
	u, err := url.Parse(pageUrl)
	return err == nil && strings.Contains(u.Path, "/error")
}

// Login logs into the portal with the given credentials and leaves the
// session on the home page.
func (c *Client) Login(ctx context.Context, username, password string) error {
	loginError := func(err error) error {
		return fmt.Errorf("maimai scraper: %w", err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(c.endpoints.LoginPage)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login page request: %w", err))
		return loginError(err)
	}
	doc, err := htmlutil.Parse(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse login page: %w", err))
		return loginError(err)
	}
	if isMaintenance(doc) {
		return loginError(ErrMaintenance)
	}

	form := doc.Find(fmt.Sprintf("input[name='%s']", c.endpoints.PasswordField)).Closest("form")
	fields := map[string]string{}
	form.Find("input[type='hidden']").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})
	for k, v := range c.endpoints.LoginFields {
		fields[k] = v
	}
	fields[c.endpoints.UsernameField] = username
	fields[c.endpoints.PasswordField] = password

	_, err = c.http.R().
		SetContext(ctx).
		SetFormData(fields).
		Post(c.endpoints.LoginSubmit)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login request: %w", err))
		return loginError(err)
	}

	res, err = c.http.R().
		SetContext(ctx).
		Get(c.endpoints.Home)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("request home page: %w", err))
		return loginError(err)
	}
	doc, err = htmlutil.Parse(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse home page: %w", err))
		return loginError(err)
	}
	if isMaintenance(doc) {
		return loginError(ErrMaintenance)
	}
	if doc.Find(".name_block").Length() == 0 {
		c.tel.ReportWarning(
			report_client_login,
			fmt.Errorf("test login: could not find .name_block"),
		)
		return loginError(ErrLoginFailed)
	}

	c.setCurrent(finalUrl(res))
	return nil
}

func (c *Client) setCurrent(u string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.current = u
}

// Current returns the url of the last page fetched.
func (c *Client) Current() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.current
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*goquery.Document, error) {
	c.tel.ReportDebug(report_client_fetch, endpoint)

	res, err := c.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch, fmt.Errorf("fetch: %w", err), endpoint)
		return nil, err
	}
	if res.IsError() {
		err := fmt.Errorf("fetch: unexpected status %d", res.StatusCode())
		c.tel.ReportWarning(report_client_fetch, err, endpoint)
		return nil, err
	}
	doc, err := htmlutil.Parse(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_fetch, fmt.Errorf("parse: %w", err), endpoint)
		return nil, err
	}

	served := finalUrl(res)
	c.setCurrent(served)
	if isLoginForm(doc) {
		c.tel.ReportWarning(report_client_session_state, ErrSessionExpired, served)
		return nil, ErrSessionExpired
	}
	if isErrorPage(served) {
		return nil, ErrPageUnavailable
	}
	return doc, nil
}

// page fetches a page that exists for as long as the session does, so
// the error page in its place means the session is gone.
func (c *Client) page(ctx context.Context, endpoint string) (*goquery.Document, error) {
	doc, err := c.fetch(ctx, endpoint)
	if errors.Is(err, ErrPageUnavailable) {
		c.tel.ReportWarning(report_client_session_state, ErrSessionExpired, endpoint)
		return nil, ErrSessionExpired
	}
	return doc, err
}

// checkSession returns ErrSessionExpired if the home page no longer shows
// the logged in player.
func (c *Client) checkSession(ctx context.Context) error {
	doc, err := c.page(ctx, c.endpoints.Home)
	if err != nil {
		return err
	}
	if doc.Find(".name_block").Length() == 0 {
		c.tel.ReportWarning(report_client_session_state, ErrSessionExpired, c.endpoints.Home)
		return ErrSessionExpired
	}
	return nil
}

func (c *Client) Records(ctx context.Context) (*goquery.Document, error) {
	return c.page(ctx, c.endpoints.Records)
}

// Detail fetches the detail page of a play. An error page is only treated
// as a lost session after the home page confirms it, otherwise the play is
// reported as ErrPageUnavailable.
func (c *Client) Detail(ctx context.Context, idx string) (*goquery.Document, error) {
	doc, err := c.fetch(ctx, c.endpoints.Detail(idx))
	if !errors.Is(err, ErrPageUnavailable) {
		return doc, err
	}
	if err := c.checkSession(ctx); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("detail %s: %w", idx, ErrPageUnavailable)
}

func (c *Client) PlayerData(ctx context.Context) (*goquery.Document, error) {
	return c.page(ctx, c.endpoints.PlayerData)
}

func (c *Client) ScoreListing(ctx context.Context, diff Difficulty) (*goquery.Document, error) {
	index := diff.Index()
	if index < 0 {
		return nil, fmt.Errorf("difficulty %q has no score listing", diff)
	}
	return c.page(ctx, c.endpoints.Scores(index))
}

// ShowRecords navigates back to the records page unless the session is
// already there.
func (c *Client) ShowRecords(ctx context.Context) error {
	if sameUrl(c.Current(), c.endpoints.Records) {
		return nil
	}
	_, err := c.Records(ctx)
	if err != nil {
		c.tel.ReportWarning(report_client_show_records, err)
	}
	return err
}

func sameUrl(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || a == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host == ub.Host &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/") &&
		ua.RawQuery == ub.RawQuery
}
