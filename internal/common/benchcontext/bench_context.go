package benchcontext

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Context is an extension of Go's context which also carries a logger. Measurement code passes it down so that
// every log line about a trial is tagged with the run, group and configuration it belongs to.
type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background creates an empty context logging through the standard logrus logger.
// It is analogous to context.Background()
func Background() *Context {
	return &Context{
		Context: context.Background(),
		Log:     logrus.NewEntry(logrus.StandardLogger()),
	}
}

// New returns a context that encapsulates both a go context and a logger
func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{
		Context: ctx,
		Log:     log,
	}
}

// WithCancel returns a copy of parent with a new Done channel. It is analogous to context.WithCancel()
func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	c, cancel := context.WithCancel(parent.Context)
	return &Context{
		Context: c,
		Log:     parent.Log,
	}, cancel
}

// WithTimeout returns a copy of parent that is cancelled after timeout. It is analogous to context.WithTimeout()
func WithTimeout(parent *Context, timeout time.Duration) (*Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(parent.Context, timeout)
	return &Context{
		Context: c,
		Log:     parent.Log,
	}, cancel
}

// WithLogField returns a copy of parent with the supplied key-value added to the logger
func WithLogField(parent *Context, key string, val interface{}) *Context {
	return &Context{
		Context: parent.Context,
		Log:     parent.Log.WithField(key, val),
	}
}

// WithLogFields returns a copy of parent with the supplied key-values added to the logger
func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return &Context{
		Context: parent.Context,
		Log:     parent.Log.WithFields(fields),
	}
}

// Info, Infof, Warnf etc. log through the contextual logger.
func (ctx *Context) Info(args ...interface{}) {
	ctx.Log.Info(args...)
}

func (ctx *Context) Infof(format string, args ...interface{}) {
	ctx.Log.Infof(format, args...)
}

func (ctx *Context) Debugf(format string, args ...interface{}) {
	ctx.Log.Debugf(format, args...)
}

func (ctx *Context) Warnf(format string, args ...interface{}) {
	ctx.Log.Warnf(format, args...)
}

func (ctx *Context) Errorf(format string, args ...interface{}) {
	ctx.Log.Errorf(format, args...)
}
