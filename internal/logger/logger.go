package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// SetLevel 按字符串设置日志级别，未知值回退到 info。
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	mu.Lock()
	log.SetLevel(parsed)
	mu.Unlock()
}

// SetOutput 替换日志输出目标（测试用）。
func SetOutput(w io.Writer) {
	mu.Lock()
	log.SetOutput(w)
	mu.Unlock()
}

func Debugf(format string, args ...any) {
	mu.RLock()
	l := log
	mu.RUnlock()
	l.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	mu.RLock()
	l := log
	mu.RUnlock()
	l.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	mu.RLock()
	l := log
	mu.RUnlock()
	l.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	mu.RLock()
	l := log
	mu.RUnlock()
	l.Errorf(format, args...)
}
