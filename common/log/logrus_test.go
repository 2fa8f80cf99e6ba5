package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestTaggedHook(t *testing.T) {
	var output bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&output)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	logger.AddHook(new(TaggedHook))
	logger.WithField("tag", "selector").Info("selector: loop started")
	require.Contains(t, output.String(), `msg="[selector]: loop started"`)
	require.NotContains(t, output.String(), "tag=")
}

func TestSetLevel(t *testing.T) {
	previous := logrus.GetLevel()
	defer logrus.SetLevel(previous)
	require.NoError(t, SetLevel("warn"))
	require.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	require.NoError(t, SetLevel(""))
	require.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	require.Error(t, SetLevel("loud"))
}
