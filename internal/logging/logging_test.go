package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-talk/internal/logging"
)

func TestNewJSON(t *testing.T) {
	l, err := logging.New("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithField("size", 2).Info("connect")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "connect", line["msg"])
	assert.EqualValues(t, 2, line["size"])
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := logging.New("loud", "text")
	assert.Error(t, err)
	_, err = logging.New("info", "xml")
	assert.Error(t, err)
}

func TestSetLevelDefault(t *testing.T) {
	l := logging.Discard()
	l.SetLevel(logrus.ErrorLevel)
	require.NoError(t, logging.SetLevel(l, ""))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
