package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
	Z string
}

type User struct {
	Name string
}

func (u *User) String() string {
	return u.Name
}

func newBufferLogger(name string, level Level) (*impl, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := &impl{
		name:      name,
		level:     NewAtomicLevelAt(level),
		inUTC:     true,
		appenders: []Appender{NewWriterAppender(buf)},
	}
	return logger, buf
}

// assertLogMatches asserts that the tab-separated columns of a log line, minus the leading
// timestamp, match the expected columns.
func assertLogMatches(t *testing.T, line string, expected []string) {
	t.Helper()
	parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, len(parts), test.ShouldEqual, len(expected)+1)
	test.That(t, parts[1:], test.ShouldResemble, expected)
}

func TestConsoleOutputFormat(t *testing.T) {
	logger, buf := newBufferLogger("impl", DEBUG)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, buf.String(), []string{"INFO", "impl", "logging/impl_test.go:51", "impl infof log"})

	buf.Reset()
	logger.Infow("impl logw", "key", "val", "StructKey", &BasicStruct{1, "alsofoo", "bar"}, &User{"alice"}, 42)
	assertLogMatches(t, buf.String(), []string{
		"INFO", "impl", "logging/impl_test.go:55", "impl logw",
		`{"key":"val","StructKey":{"X":1,"Z":"bar"},"alice":42}`,
	})

	buf.Reset()
	logger.Infow("unpaired", "lonely")
	test.That(t, buf.String(), test.ShouldContainSubstring, `"lonely":"unpaired log key"`)
}

func TestLevels(t *testing.T) {
	logger, buf := newBufferLogger("levels", WARN)

	logger.Debugw("dropped")
	logger.Infof("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warnw("kept")
	test.That(t, buf.String(), test.ShouldContainSubstring, "WARN")
	buf.Reset()

	logger.SetLevel(ERROR)
	test.That(t, logger.level.Get(), test.ShouldEqual, ERROR)
	logger.Warnf("dropped %d", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	logger.Errorw("kept", "k", 1)
	test.That(t, buf.String(), test.ShouldContainSubstring, `{"k":1}`)
	buf.Reset()

	logger.Errorf("kept %d", 2)
	test.That(t, buf.String(), test.ShouldContainSubstring, "ERROR")
	test.That(t, buf.String(), test.ShouldContainSubstring, "kept 2")

	logger.SetLevel(DEBUG)
	buf.Reset()
	logger.Debugf("now %s", "visible")
	test.That(t, buf.String(), test.ShouldContainSubstring, "now visible")
}

func TestSubloggerNaming(t *testing.T) {
	logger, buf := newBufferLogger("pcfilter", INFO)
	sub := logger.Sublogger("worker")
	sub.Infow("hello")
	test.That(t, buf.String(), test.ShouldContainSubstring, "\tpcfilter.worker\t")

	// Subloggers have an independent level.
	sub.SetLevel(ERROR)
	test.That(t, logger.level.Get(), test.ShouldEqual, INFO)
	buf.Reset()
	sub.Infow("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	blank := NewBlankLogger("")
	test.That(t, blank.Sublogger("octree").(*impl).name, test.ShouldEqual, "octree")
}

func TestObservedLogs(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("built index", "points", 64)
	logger.Sublogger("coordinator").Warnf("barrier")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("built index").Len(), test.ShouldEqual, 1)
	entry := logs.FilterMessage("built index").All()[0]
	test.That(t, entry.ContextMap()["points"], test.ShouldEqual, int64(64))
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).All()[0].LoggerName, test.ShouldEqual, "coordinator")
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestPairsToFields(t *testing.T) {
	test.That(t, pairsToFields(nil), test.ShouldBeEmpty)

	fields := pairsToFields([]interface{}{"a", 1, &User{"bob"}, "x", 7})
	test.That(t, len(fields), test.ShouldEqual, 3)
	test.That(t, fields[0].Key, test.ShouldEqual, "a")
	test.That(t, fields[1].Key, test.ShouldEqual, "bob")
	test.That(t, fields[2].Key, test.ShouldEqual, "7")
	test.That(t, fields[2].Type, test.ShouldEqual, zapcore.ErrorType)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.out)
		test.That(t, level.AsZap().String(), test.ShouldEqual, tc.out.String())
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loud")
}

func TestFileAppender(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "pcfilter.log")
	appender, closer := NewFileAppender(fn)

	logger := NewBlankLogger("file")
	logger.AddAppender(appender)
	logger.Infof("wrote %d survivors", 7)
	test.That(t, closer.Close(), test.ShouldBeNil)

	//nolint:gosec
	data, err := os.ReadFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "wrote 7 survivors")
}
