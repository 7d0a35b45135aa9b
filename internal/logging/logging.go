package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

func New(level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// fileHook duplicates entries into a per-shop log file.
type fileHook struct {
	file      *os.File
	formatter logrus.Formatter
	fields    logrus.Fields
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	for k, v := range h.fields {
		if e.Data[k] != v {
			return nil
		}
	}
	line, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.file.Write(line)
	return err
}

// ShopFiles mirrors each shop's entries into <shop dir>/logs.txt. A shop's
// file is opened once and stays open until Close.
type ShopFiles struct {
	log   *logrus.Logger
	mu    sync.Mutex
	files map[string]*os.File
}

func NewShopFiles(log *logrus.Logger) *ShopFiles {
	return &ShopFiles{log: log, files: make(map[string]*os.File)}
}

func (s *ShopFiles) Attach(shop, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[shop]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "logs.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.files[shop] = f
	s.log.AddHook(&fileHook{
		file:      f,
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
		fields:    logrus.Fields{"shop": shop},
	})
	return nil
}

func (s *ShopFiles) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for shop, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, shop)
	}
	s.log.ReplaceHooks(make(logrus.LevelHooks))
	return firstErr
}
