package log

import (
	"strings"

	E "github.com/sagernet/sing-cio/common/exceptions"

	"github.com/sirupsen/logrus"
)

func init() {
	logrus.StandardLogger().Formatter.(*logrus.TextFormatter).ForceColors = true
	logrus.AddHook(new(TaggedHook))
}

type Logger = logrus.FieldLogger

func NewLogger(tag string) *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("tag", tag)
}

// Discard returns a logger that drops every entry, for components built
// without one.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return E.Cause(err, "parse log level")
	}
	logrus.SetLevel(parsed)
	return nil
}

func SetVerbose(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.TraceLevel)
	}
}

type TaggedHook struct{}

func (h *TaggedHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *TaggedHook) Fire(entry *logrus.Entry) error {
	tagObj, loaded := entry.Data["tag"]
	if !loaded {
		return nil
	}
	tag, isString := tagObj.(string)
	if !isString {
		return nil
	}
	delete(entry.Data, "tag")
	entry.Message = "[" + tag + "]: " + strings.TrimPrefix(entry.Message, tag+": ")
	return nil
}
