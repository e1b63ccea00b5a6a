package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json"}, &buf)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("asset", "BTC").Info("cycle done")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "BTC", m["asset"])
	assert.Equal(t, "cycle done", m["msg"])
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	l := New(Options{Level: "chatty", Format: "text"}, &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
