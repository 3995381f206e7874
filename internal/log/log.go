package log

import (
	"io"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var std = newLogger(os.Stdout)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "action",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Logger exposes the underlying logger for middleware that wants an io.Writer.
func Logger() *logrus.Logger { return std }

func SetOutput(w io.Writer) { std.SetOutput(w) }

// SetLevel accepts logrus level names; unknown names leave the level unchanged.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		std.SetLevel(lvl)
	}
}

func entry(c *fiber.Ctx, category string, err error, fields map[string]any) *logrus.Entry {
	e := logrus.NewEntry(std)
	if len(fields) > 0 {
		e = e.WithField("fields", fields)
	}
	if category != "" {
		e = e.WithField("category", category)
	}
	if c != nil {
		e = e.WithFields(logrus.Fields{
			"ip":     c.IP(),
			"method": c.Method(),
			"path":   c.Path(),
			"status": c.Response().StatusCode(),
		})
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			e = e.WithField("req_id", rid)
		}
	}
	if err != nil {
		e = e.WithField("err", err.Error())
	}
	return e
}

func Info(c *fiber.Ctx, action string, fields map[string]any) {
	entry(c, "", nil, fields).Info(action)
}

// Audit records a state change made on behalf of a caller.
func Audit(c *fiber.Ctx, action string, fields map[string]any) {
	entry(c, "audit", nil, fields).Info(action)
}

func Security(c *fiber.Ctx, action string, fields map[string]any) {
	entry(c, "security", nil, fields).Warn(action)
}

func Error(c *fiber.Ctx, action string, err error, fields map[string]any) {
	entry(c, "", err, fields).Error(action)
}

// Event is the request-less audit entry used by services and the monitor.
func Event(action string, fields map[string]any) {
	entry(nil, "audit", nil, fields).Info(action)
}

func Warn(action string, fields map[string]any) {
	entry(nil, "", nil, fields).Warn(action)
}

func Fail(action string, err error, fields map[string]any) {
	entry(nil, "", err, fields).Error(action)
}
