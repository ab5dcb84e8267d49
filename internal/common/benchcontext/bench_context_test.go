package benchcontext

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietContext() (*Context, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(Background().Context, logrus.NewEntry(logger)), hook
}

func TestWithLogField(t *testing.T) {
	ctx, hook := quietContext()
	WithLogField(ctx, "N", 1024).Info("measured")

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "measured", hook.LastEntry().Message)
	assert.Equal(t, 1024, hook.LastEntry().Data["N"])
}

func TestWithLogFields(t *testing.T) {
	ctx, hook := quietContext()
	WithLogFields(ctx, logrus.Fields{"group": "small", "p": 4}).Warnf("fallback used for %s", "parallel")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "fallback used for parallel", entry.Message)
	assert.Equal(t, "small", entry.Data["group"])
	assert.Equal(t, 4, entry.Data["p"])
}

func TestWithTimeout(t *testing.T) {
	ctx, _ := quietContext()
	child, cancel := WithTimeout(WithLogField(ctx, "k", "v"), time.Millisecond)
	defer cancel()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	assert.Equal(t, "v", child.Log.Data["k"])
}

func TestWithCancel(t *testing.T) {
	ctx, _ := quietContext()
	child, cancel := WithCancel(ctx)
	cancel()
	<-child.Done()
	assert.Error(t, child.Err())
	assert.NoError(t, ctx.Err())
}
