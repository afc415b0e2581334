package requestid

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
)

const (
	// HeaderName carries the request id in both directions
	HeaderName = fiber.HeaderXRequestID
	// ContextKey is the fiber.Ctx locals key of the request id
	ContextKey = "request_id"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a lexicographically sortable request id
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// New keeps an incoming X-Request-ID or assigns a fresh ULID
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderName)
		if id == "" || len(id) > 128 {
			id = NewID()
		}

		c.Locals(ContextKey, id)
		c.Set(HeaderName, id)

		return c.Next()
	}
}

// FromCtx returns the request id assigned by New
func FromCtx(c *fiber.Ctx) string {
	id, _ := c.Locals(ContextKey).(string)
	return id
}
