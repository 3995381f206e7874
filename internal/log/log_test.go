package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type line struct {
	Action   string         `json:"action"`
	Level    string         `json:"level"`
	Category string         `json:"category"`
	Err      string         `json:"err"`
	Path     string         `json:"path"`
	ReqID    string         `json:"req_id"`
	Fields   map[string]any `json:"fields"`
}

func capture(t *testing.T, fn func()) []line {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	fn()

	var out []line
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var l line
		assert.NoError(t, json.Unmarshal([]byte(raw), &l))
		out = append(out, l)
	}
	return out
}

func TestRequestEntriesCarryContext(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Post("/auctions", func(c *fiber.Ctx) error {
		Audit(c, "auction.create", map[string]any{"auction_id": "a-1"})
		Security(c, "validation.fail", nil)
		return c.SendStatus(fiber.StatusCreated)
	})

	lines := capture(t, func() {
		_, err := app.Test(httptest.NewRequest("POST", "/auctions", nil), -1)
		assert.NoError(t, err)
	})
	assert.Equal(t, 2, len(lines))

	check.Equal(t, "auction.create", lines[0].Action)
	check.Equal(t, "audit", lines[0].Category)
	check.Equal(t, "info", lines[0].Level)
	check.Equal(t, "/auctions", lines[0].Path)
	check.True(t, lines[0].ReqID != "")
	check.Equal(t, "a-1", lines[0].Fields["auction_id"])

	check.Equal(t, "security", lines[1].Category)
	check.Equal(t, "warning", lines[1].Level)
}

func TestRequestlessEntries(t *testing.T) {
	lines := capture(t, func() {
		Event("monitor.sweep", map[string]any{"ended": 2})
		Fail("monitor.sweep", errors.New("database is locked"), nil)
	})
	assert.Equal(t, 2, len(lines))
	check.Equal(t, "audit", lines[0].Category)
	check.Equal(t, "", lines[0].Path)
	check.Equal(t, "error", lines[1].Level)
	check.Equal(t, "database is locked", lines[1].Err)
}

func TestSetLevelIgnoresUnknownNames(t *testing.T) {
	defer SetLevel("info")
	SetLevel("error")
	lines := capture(t, func() { Event("dropped", nil) })
	check.Equal(t, 0, len(lines))

	SetLevel("loud")
	lines = capture(t, func() { Event("still.dropped", nil) })
	check.Equal(t, 0, len(lines))
}
