package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const HeaderAPIKey = "X-API-Key"

type AuthMiddleware struct {
	s   service.ApiKeyService
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config, service service.ApiKeyService) *AuthMiddleware {
	return &AuthMiddleware{s: service, cfg: cfg}
}

// AuthMiddleware accepts an API key (query or header) or a session cookie.
// It sets user_id and the rate_key the limiter counts against.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		apiKey := c.Get(HeaderAPIKey)
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Keys or cookies",
			})
		}

		if apiKey != "" {
			userID, err := m.s.GetUserID(c.Context(), apiKey)
			if err != nil {
				slog.Info(err.Error())
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid api key",
				})
			}
			c.Locals("user_id", fmt.Sprintf("%d", userID))
			c.Locals("rate_key", "key:"+apiKey)
			return c.Next()
		}

		claims, err := utils.ParseSession(m.cfg.SecretKey, tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})

			slog.Info("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("rate_key", "user:"+claims.UserID)
		m.renewSession(c, claims)
		return c.Next()
	}
}

// renewSession slides the cookie forward once it is past half its lifetime.
func (m *AuthMiddleware) renewSession(c *fiber.Ctx, claims *transfer.CustomClaims) {
	now := time.Now()
	token, err := utils.RenewSession(m.cfg.SecretKey, claims, m.cfg.SessionTTL, now)
	if err != nil {
		slog.Warn("session renewal failed", "user_id", claims.UserID, "error", err)
		return
	}
	if token == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(m.cfg.SessionTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
