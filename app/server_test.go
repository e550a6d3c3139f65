package app_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-starter"
	"github.com/goliatone/go-auth-starter/app"
	"github.com/goliatone/go-auth-starter/config"
	"github.com/goliatone/go-auth-starter/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	csrfField = regexp.MustCompile(`name="_csrf" value="([0-9a-f]+)"`)
	signupURL = regexp.MustCompile(`/signup/([A-Za-z0-9]+)`)
)

// outbox records every delivered message
type outbox struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (o *outbox) Deliver(_ context.Context, msg notification.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) Messages() []notification.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notification.Message(nil), o.msgs...)
}

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	values := map[string]any{
		"app.name":           "Starter",
		"app.base_url":       "http://localhost:8080",
		"app.secret_key":     "test-secret-test-secret-test-secret",
		"database.dsn":       fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		"crypto.bcrypt_cost": bcrypt.MinCost,
		"hashid.salt":        "test-salt",
	}
	for k, v := range overrides {
		values[k] = v
	}

	cfg, err := config.Load(config.Options{DotEnv: "testdata/none.env", Overrides: values})
	require.NoError(t, err)
	return cfg
}

func newTestApp(t *testing.T, overrides map[string]any) (*app.App, *outbox) {
	t.Helper()

	a := app.New(testConfig(t, overrides), zap.NewNop())
	mail := &outbox{}
	a.SetMailer(mail)
	a.SetActivitySink(auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return nil }))

	ctx := context.Background()
	require.NoError(t, app.Bootstrap(ctx, a))
	require.NoError(t, a.Migrate(ctx))
	t.Cleanup(func() { _ = a.Close() })

	return a, mail
}

// browser keeps cookies between requests against the in-process server
type browser struct {
	t       *testing.T
	srv     *fiber.App
	cookies map[string]string
}

func newBrowser(t *testing.T, srv *fiber.App) *browser {
	return &browser{t: t, srv: srv, cookies: map[string]string{}}
}

func (b *browser) do(method, path string, form url.Values) (*http.Response, string) {
	b.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := b.srv.Test(req, -1)
	require.NoError(b.t, err)

	for _, ck := range resp.Cookies() {
		expired := !ck.Expires.IsZero() && ck.Expires.Before(time.Now())
		if ck.Value == "" || ck.MaxAge < 0 || expired {
			delete(b.cookies, ck.Name)
			continue
		}
		b.cookies[ck.Name] = ck.Value
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(raw)
}

func (b *browser) get(path string) (*http.Response, string) {
	return b.do(fiber.MethodGet, path, nil)
}

// submit loads page for a CSRF token and posts form to action
func (b *browser) submit(page, action string, form url.Values) (*http.Response, string) {
	b.t.Helper()

	resp, body := b.get(page)
	require.Equal(b.t, fiber.StatusOK, resp.StatusCode, body)

	m := csrfField.FindStringSubmatch(body)
	require.Len(b.t, m, 2, "csrf token not found on %s", page)

	form.Set("_csrf", m[1])
	return b.do(fiber.MethodPost, action, form)
}

func (b *browser) login(identity, password string) {
	b.t.Helper()
	resp, _ := b.submit("/login", "/login", url.Values{
		"identity": {identity},
		"password": {password},
	})
	require.Equal(b.t, fiber.StatusFound, resp.StatusCode)
	require.Equal(b.t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestInviteSignupFlow(t *testing.T) {
	a, mail := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Admin().CreateUser(ctx, auth.CreateUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice-password",
	})
	require.NoError(t, err)

	alice := newBrowser(t, a.HTTPServer())

	resp, _ := alice.get("/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2F", resp.Header.Get(fiber.HeaderLocation))

	alice.login("alice", "alice-password")

	resp, body := alice.get("/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Logged in successfully")
	assert.Contains(t, body, "alice")

	resp, _ = alice.submit("/invite", "/invite", url.Values{"email": {"bob@example.com"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/invite", resp.Header.Get(fiber.HeaderLocation))

	_, body = alice.get("/")
	assert.Regexp(t, `id="invitations">\s*9\s*<`, body)

	msgs := mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"bob@example.com"}, msgs[0].Recipients)
	m := signupURL.FindStringSubmatch(msgs[0].Body)
	require.Len(t, m, 2)
	token := m[1]

	bob := newBrowser(t, a.HTTPServer())
	resp, _ = bob.submit("/signup/"+token, "/signup/"+token, url.Values{
		"username":         {"bobby"},
		"email":            {"bob@example.com"},
		"password":         {"bob-password"},
		"confirm_password": {"bob-password"},
		"locale":           {"en"},
		"timezone":         {"Europe/Madrid"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	bob.login("bobby", "bob-password")
	_, body = bob.get("/")
	assert.Contains(t, body, "bobby")

	// the invitation is spent
	other := newBrowser(t, a.HTTPServer())
	resp, _ = other.get("/signup/" + token)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	resp, _ = bob.get("/logout")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	resp, _ = bob.get("/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestLoginRejected(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Admin().CreateUser(ctx, auth.CreateUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice-password",
	})
	require.NoError(t, err)

	b := newBrowser(t, a.HTTPServer())
	resp, body := b.submit("/login", "/login", url.Values{
		"identity": {"alice"},
		"password": {"wrong"},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid credentials")

	resp, _ = b.get("/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestRememberMeRestoresSession(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Admin().CreateUser(ctx, auth.CreateUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice-password",
	})
	require.NoError(t, err)

	b := newBrowser(t, a.HTTPServer())
	resp, _ := b.submit("/login", "/login", url.Values{
		"identity":    {"alice"},
		"password":    {"alice-password"},
		"remember_me": {"true"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.NotEmpty(t, b.cookies[auth.DefaultRememberCookie])

	delete(b.cookies, app.SessionCookie)

	resp, body := b.get("/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "alice")

	require.NoError(t, a.Admin().ChangePassword(ctx, "alice", "rotated-password"))
	delete(b.cookies, app.SessionCookie)

	resp, _ = b.get("/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestForgotPasswordDoesNotLeakAccounts(t *testing.T) {
	a, mail := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Admin().CreateUser(ctx, auth.CreateUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice-password",
	})
	require.NoError(t, err)

	b := newBrowser(t, a.HTTPServer())
	known, knownBody := b.submit("/forgot-password", "/forgot-password", url.Values{"email": {"alice@example.com"}})
	unknown, unknownBody := b.submit("/forgot-password", "/forgot-password", url.Values{"email": {"nobody@example.com"}})

	assert.Equal(t, fiber.StatusOK, known.StatusCode)
	assert.Equal(t, known.StatusCode, unknown.StatusCode)
	assert.Equal(t, knownBody, unknownBody)
	assert.Contains(t, knownBody, auth.PasswordResetRequestedMessage)

	msgs := mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"alice@example.com"}, msgs[0].Recipients)

	m := regexp.MustCompile(`/reset-password/([A-Za-z0-9]+)`).FindStringSubmatch(msgs[0].Body)
	require.Len(t, m, 2)

	resp, _ := b.submit("/reset-password/"+m[1], "/reset-password/"+m[1], url.Values{
		"password":        {"new-password"},
		"retype_password": {"new-password"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	b.login("alice", "new-password")
	require.Len(t, mail.Messages(), 2)
}

func TestCSRFAndErrorPages(t *testing.T) {
	a, mail := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Admin().CreateUser(ctx, auth.CreateUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice-password",
	})
	require.NoError(t, err)

	anon := newBrowser(t, a.HTTPServer())
	resp, _ := anon.get("/login")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = anon.do(fiber.MethodPost, "/login", url.Values{
		"identity": {"alice"},
		"password": {"alice-password"},
	})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	resp, _ = anon.get("/does-not-exist")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	alice := newBrowser(t, a.HTTPServer())
	alice.login("alice", "alice-password")

	resp, _ = alice.do(fiber.MethodPost, "/invite", url.Values{
		"email": {"bob@example.com"},
		"_csrf": {"forged"},
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Empty(t, mail.Messages())

	resp, _ = alice.get("/does-not-exist")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body := alice.get("/csrf")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"field_name":"_csrf"`)
}

func TestBootstrapWithRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	a, mail := newTestApp(t, map[string]any{
		"redis.addr":    mr.Addr(),
		"tasks.enabled": true,
	})
	ctx := context.Background()

	require.True(t, a.Gateway().Async())

	err := a.Gateway().Send(ctx, "Hello", []string{"bob@example.com"}, "body")
	require.NoError(t, err)
	assert.Empty(t, mail.Messages())

	ok, err := a.Worker().ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	msgs := mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Subject)

	b := newBrowser(t, a.HTTPServer())
	resp, _ := b.get("/login")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.True(t, strings.HasPrefix(keys[0], "session:"), keys[0])
}

func TestBootstrapTasksRequireRedis(t *testing.T) {
	a := app.New(testConfig(t, map[string]any{"tasks.enabled": true}), zap.NewNop())
	t.Cleanup(func() { _ = a.Close() })

	err := app.Bootstrap(context.Background(), a)
	assert.Error(t, err)
}

func TestBootstrapRefusesDefaultSecret(t *testing.T) {
	a := app.New(testConfig(t, map[string]any{"app.secret_key": config.DefaultSecretKey}), zap.NewNop())
	t.Cleanup(func() { _ = a.Close() })

	err := app.Bootstrap(context.Background(), a)
	assert.ErrorIs(t, err, config.ErrDefaultSecretKey)

	debug := app.New(testConfig(t, map[string]any{
		"app.secret_key": config.DefaultSecretKey,
		"app.debug":      true,
	}), zap.NewNop())
	debug.SetMailer(&outbox{})
	t.Cleanup(func() { _ = debug.Close() })
	assert.NoError(t, app.Bootstrap(context.Background(), debug))
}

func createAlice(t *testing.T, a *app.App) {
	t.Helper()
	_, err := a.Admin().CreateUser(context.Background(), auth.CreateUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice-password",
	})
	require.NoError(t, err)
}

func TestLoggedInVisitorCanSignupWithInvitation(t *testing.T) {
	a, mail := newTestApp(t, nil)
	createAlice(t, a)

	alice := newBrowser(t, a.HTTPServer())
	alice.login("alice", "alice-password")

	resp, _ := alice.submit("/invite", "/invite", url.Values{"email": {"bob@example.com"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	msgs := mail.Messages()
	require.Len(t, msgs, 1)
	m := signupURL.FindStringSubmatch(msgs[0].Body)
	require.Len(t, m, 2)

	// same browser, alice is still logged in when the signup page loads
	resp, _ = alice.submit("/signup/"+m[1], "/signup/"+m[1], url.Values{
		"username":         {"bobby"},
		"email":            {"bob@example.com"},
		"password":         {"bob-password"},
		"confirm_password": {"bob-password"},
		"locale":           {"en"},
		"timezone":         {"UTC"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	resp, body := alice.get("/login")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "User created correctly, please login")

	info, err := a.Admin().UserInfo(context.Background(), "bobby", "")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", info.Email)

	alice.login("bobby", "bob-password")
}

func TestLoggedInVisitorCanRequestPasswordReset(t *testing.T) {
	a, mail := newTestApp(t, nil)
	createAlice(t, a)

	alice := newBrowser(t, a.HTTPServer())
	alice.login("alice", "alice-password")

	resp, body := alice.submit("/forgot-password", "/forgot-password", url.Values{"email": {"alice@example.com"}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, auth.PasswordResetRequestedMessage)
	require.Len(t, mail.Messages(), 1)

	resp, _ = alice.get("/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2F", resp.Header.Get(fiber.HeaderLocation))

	alice.login("alice", "alice-password")
	m := regexp.MustCompile(`/reset-password/([A-Za-z0-9]+)`).FindStringSubmatch(mail.Messages()[0].Body)
	require.Len(t, m, 2)

	resp, _ = alice.submit("/reset-password/"+m[1], "/reset-password/"+m[1], url.Values{
		"password":        {"new-password"},
		"retype_password": {"new-password"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	alice.login("alice", "new-password")
}

// restoredBrowser logs alice in with remember me and drops the session, so
// the next request runs on a session restored from the remember cookie.
func restoredBrowser(t *testing.T, a *app.App) *browser {
	t.Helper()
	b := newBrowser(t, a.HTTPServer())
	resp, _ := b.submit("/login", "/login", url.Values{
		"identity":    {"alice"},
		"password":    {"alice-password"},
		"remember_me": {"true"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.NotEmpty(t, b.cookies[auth.DefaultRememberCookie])
	delete(b.cookies, app.SessionCookie)
	return b
}

func TestInviteRequiresFreshLogin(t *testing.T) {
	a, mail := newTestApp(t, nil)
	createAlice(t, a)

	b := restoredBrowser(t, a)

	resp, _ := b.submit("/invite", "/invite", url.Values{"email": {"bob@example.com"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/reauthenticate?next=%2Finvite", resp.Header.Get(fiber.HeaderLocation))
	assert.Empty(t, mail.Messages())

	resp, body := b.get("/reauthenticate?next=%2Finvite")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Please reauthenticate to access this page")

	resp, body = b.submit("/reauthenticate?next=%2Finvite", "/reauthenticate?next=%2Finvite", url.Values{
		"password": {"wrong"},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid credentials")

	resp, _ = b.submit("/reauthenticate?next=%2Finvite", "/reauthenticate?next=%2Finvite", url.Values{
		"password": {"alice-password"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/invite", resp.Header.Get(fiber.HeaderLocation))

	resp, _ = b.submit("/invite", "/invite", url.Values{"email": {"bob@example.com"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/invite", resp.Header.Get(fiber.HeaderLocation))
	assert.Len(t, mail.Messages(), 1)
}

func TestReauthenticateIgnoresForeignNext(t *testing.T) {
	a, _ := newTestApp(t, nil)
	createAlice(t, a)

	b := restoredBrowser(t, a)
	target := "/reauthenticate?next=" + url.QueryEscape("https://evil.example/steal")

	resp, _ := b.submit(target, target, url.Values{"password": {"alice-password"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestDeactivatedUserIsLoggedOut(t *testing.T) {
	a, _ := newTestApp(t, nil)
	createAlice(t, a)

	b := newBrowser(t, a.HTTPServer())
	b.login("alice", "alice-password")

	_, err := a.Admin().Deactivate(context.Background(), "alice")
	require.NoError(t, err)

	resp, _ := b.get("/reauthenticate")
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Freauthenticate", resp.Header.Get(fiber.HeaderLocation))

	resp, _ = b.get("/")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2F", resp.Header.Get(fiber.HeaderLocation))

	resp, body := b.submit("/login", "/login", url.Values{
		"identity": {"alice"},
		"password": {"alice-password"},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid credentials")
}
