package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

// newTestDB opens a private in-memory database with the schema applied
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = auth.Migrate(context.Background(), db, auth.NopLogger{})
	require.NoError(t, err)

	return db
}

func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()
	repo := auth.NewRepositoryManager(newTestDB(t))
	require.NoError(t, repo.Validate())
	require.NotPanics(t, repo.MustValidate)
	return repo
}

func newHasher() *auth.BcryptHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

// createUser stores an active user with the given password
func createUser(t *testing.T, repo auth.RepositoryManager, username, email, password string) *auth.User {
	t.Helper()

	hash, err := newHasher().Hash(password)
	require.NoError(t, err)

	user, err := repo.Users().Create(context.Background(), &auth.User{
		Username:    username,
		Email:       email,
		Password:    hash,
		IsActive:    true,
		Invitations: auth.DefaultInvitations,
	})
	require.NoError(t, err)
	return user
}

// testClock is a movable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentEmail struct {
	Subject    string
	Recipients []string
	Body       string
}

// recordingNotifier keeps every sent email, failing when err is set
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, subject string, recipients []string, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentEmail{Subject: subject, Recipients: recipients, Body: body})
	return nil
}

func (n *recordingNotifier) Sent() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.sent...)
}

var errSMTPDown = errors.New("smtp down")

func newEmails(t *testing.T) *auth.EmailComposer {
	t.Helper()
	views, err := auth.NewViews(false)
	require.NoError(t, err)
	return auth.NewEmailComposer(views, "Starter", "http://localhost:8080/")
}

// capturingSink records activity events
type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}
