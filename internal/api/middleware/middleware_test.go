package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys map[string]int64

func (f fakeKeys) GetUserID(_ context.Context, key string) (int64, error) {
	if id, ok := f[key]; ok {
		return id, nil
	}
	return 0, service.ErrInvalidAPIKey
}

var testConfig = config.Config{SecretKey: "secret", CookieName: "session", SessionTTL: time.Hour}

func newApp(t *testing.T, requests int) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := service.NewRateLimiter(repository.NewRateWindowRepository(client), requests, time.Minute)

	app := fiber.New()
	app.Use(NewAuthMiddleware(testConfig, fakeKeys{"k1": 5, "k2": 5}).AuthMiddleware())
	app.Use(NewRateLimitMiddleware(limiter).RateLimit())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	return app
}

func get(t *testing.T, app *fiber.App, setup func(*http.Request)) *http.Response {
	t.Helper()
	return getURL(t, app, "/whoami", setup)
}

func getURL(t *testing.T, app *fiber.App, target string, setup func(*http.Request)) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if setup != nil {
		setup(req)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuth_Credentials(t *testing.T) {
	app := newApp(t, 100)

	assert.Equal(t, http.StatusUnauthorized, get(t, app, nil).StatusCode)

	resp := get(t, app, func(r *http.Request) { r.Header.Set(HeaderAPIKey, "k1") })
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getURL(t, app, "/whoami?api_key=k1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "5", string(body))

	resp = getURL(t, app, "/whoami?api_key=bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get(t, app, func(r *http.Request) { r.Header.Set(HeaderAPIKey, "bogus") })
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := utils.SignSession(testConfig.SecretKey, "9", time.Hour, time.Now())
	require.NoError(t, err)
	resp = get(t, app, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: token}) })
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, app, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "garbage"}) })
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_RenewsAgingSession(t *testing.T) {
	app := newApp(t, 100)
	withCookie := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: token}) }
	}

	fresh, err := utils.SignSession(testConfig.SecretKey, "9", time.Hour, time.Now())
	require.NoError(t, err)
	resp := get(t, app, withCookie(fresh))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())

	aging, err := utils.SignSession(testConfig.SecretKey, "9", time.Hour, time.Now().Add(-45*time.Minute))
	require.NoError(t, err)
	resp = get(t, app, withCookie(aging))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.NotEqual(t, aging, cookies[0].Value)

	claims, err := utils.ParseSession(testConfig.SecretKey, cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "9", claims.UserID)
}

func TestRateLimit_PerCredential(t *testing.T) {
	app := newApp(t, 2)
	withKey := func(key string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set(HeaderAPIKey, key) }
	}

	resp := get(t, app, withKey("k1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusOK, get(t, app, withKey("k1")).StatusCode)

	resp = get(t, app, withKey("k1"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Same account, different key: counted separately.
	assert.Equal(t, http.StatusOK, get(t, app, withKey("k2")).StatusCode)
}
