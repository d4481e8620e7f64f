package requestctx

import (
	"github.com/gofiber/fiber/v2"
)

// FiberRequest adapts a fiber context to Request.
type FiberRequest struct {
	c *fiber.Ctx
}

// FromFiber wraps c.
func FromFiber(c *fiber.Ctx) *FiberRequest {
	return &FiberRequest{c: c}
}

func (r *FiberRequest) Header(name string) string { return r.c.Get(name) }

func (r *FiberRequest) Cookie(name string) string { return r.c.Cookies(name) }

func (r *FiberRequest) RemoteAddr() string { return r.c.Context().RemoteAddr().String() }

func (r *FiberRequest) Secure() bool { return r.c.Secure() }

func (r *FiberRequest) SetCookie(cookie Cookie) {
	r.c.Cookie(&fiber.Cookie{
		Name:        cookie.Name,
		Value:       cookie.Value,
		Path:        cookie.Path,
		MaxAge:      cookie.MaxAge,
		SessionOnly: cookie.MaxAge == 0,
		HTTPOnly:    cookie.HTTPOnly,
		Secure:      cookie.Secure,
		SameSite:    cookie.SameSite,
	})
}
