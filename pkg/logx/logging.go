package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig controls forwarding of log events to a chat Sender.
type ChatConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// DefaultFilePath is the log file used when file logging is enabled without a path.
const DefaultFilePath = "./karma_bot.log"

// Sender delivers a rendered log line to a chat channel.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

const (
	timeFormat    = "2006-01-02T15:04:05.000Z07:00"
	chatQueueSize = 64
	chatMaxLen    = 3500
	chatSendLimit = 10 * time.Second
)

// Field mutates a zerolog event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger carries a zerolog root plus fixed fields. The zero value
// discards everything.
type Logger struct {
	zl     *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger { return Logger{} }

// NewWriter creates a standalone JSON logger writing to w.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{zl: &zl}
}

func (l Logger) IsZero() bool { return l.zl == nil && len(l.fields) == 0 }

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l Logger) log(level zerolog.Level, msg string, fields []Field) {
	if l.zl == nil {
		return
	}
	e := l.zl.WithLevel(level)
	if e == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}

// Service owns the log sinks: console, JSON file and the rate-limited
// chat forwarder.
type Service struct {
	file *os.File

	sender   Sender
	limiter  *rate.Limiter
	minLevel zerolog.Level
	queue    chan string
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// New opens the configured sinks and returns the Service with its root
// Logger. sender may be nil, which disables the chat sink. A log file
// that cannot be opened is reported on stderr and skipped.
func New(cfg Config, sender Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{}
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFilePath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Chat.Enabled && sender != nil {
		s.startChat(cfg.Chat, sender)
		writers = append(writers, chatWriter{s})
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	return s, Logger{zl: &zl}
}

// Close stops the chat forwarder, dropping queued messages, and closes
// the log file.
func (s *Service) Close() error {
	if s.stop != nil {
		s.stop()
		s.wg.Wait()
		s.stop = nil
	}
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}

func (s *Service) startChat(cfg ChatConfig, sender Sender) {
	rps := max(1, cfg.RatePerSec)
	s.sender = sender
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	s.queue = make(chan string, chatQueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-s.queue:
				sctx, cancel := context.WithTimeout(ctx, chatSendLimit)
				_ = s.sender.SendText(sctx, msg)
				cancel()
			}
		}
	}()
}

// chatWriter forwards events at or above the chat level. It never blocks:
// over-rate or overflowing messages are dropped.
type chatWriter struct{ s *Service }

func (w chatWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.s.minLevel || !w.s.limiter.Allow() {
		return len(p), nil
	}
	select {
	case w.s.queue <- chatText(p):
	default:
	}
	return len(p), nil
}

// chatText renders an event as "[LEVEL] message" followed by one k=v per line.
func chatText(p []byte) string {
	raw := strings.TrimSpace(string(p))
	ev, ok := decodeLine(raw)
	if !ok {
		return truncate(raw, chatMaxLen)
	}
	var b strings.Builder
	b.WriteString("[" + strings.ToUpper(ev.level) + "] " + ev.message)
	for _, kv := range ev.fields {
		b.WriteString("\n" + kv.key + "=" + truncate(kv.value, 600))
	}
	return truncate(b.String(), chatMaxLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
