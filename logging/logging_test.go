package logging_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/logging"
)

func TestConfigure_AppliesLevelFormatAndOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logging.Configure(logging.Options{
		Level:  "warn",
		JSON:   true,
		Output: &buf,
	}))

	entry := logging.New("packwriter")
	entry.Info("should be suppressed below warn level")
	entry.Warn("pack install started")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "pack install started")
	assert.Contains(t, out, `"component":"packwriter"`)
}

func TestConfigure_RejectsUnknownLevel(t *testing.T) {
	err := logging.Configure(logging.Options{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestNew_TagsComponentField(t *testing.T) {
	entry := logging.New("commitgraph")
	assert.Equal(t, "commitgraph", entry.Data["component"])
	assert.IsType(t, &logrus.Entry{}, entry)
}
