package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfo(t *testing.T) {
	log := New("chatty", "json")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestComponentFieldIsWritten(t *testing.T) {
	log := New("debug", "json")
	var buf bytes.Buffer
	log.SetOutput(&buf)

	Component(log, "remote").Info("request sent")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "remote", line["component"])
	assert.Equal(t, "request sent", line["message"])
	assert.Contains(t, line, "timestamp")
}
