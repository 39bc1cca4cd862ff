package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level orders log severities.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// levelStyles builds the tag styles against the renderer of the log output,
// so color is only emitted when that writer is a color terminal.
func levelStyles(r *lipgloss.Renderer) map[Level]lipgloss.Style {
	return map[Level]lipgloss.Style{
		LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("39")),
		LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		LevelError: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

// Logger writes timestamped status lines. One Logger is built in main and
// handed to every component that reports progress; there is no package-level
// instance.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	styles map[Level]lipgloss.Style
	now    func() time.Time
	silent bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithColor enables lipgloss-styled level tags.
func WithColor(enabled bool) Option { return func(l *Logger) { l.color = enabled } }

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option { return func(l *Logger) { l.now = now } }

// New creates a logger writing to out.
func New(out io.Writer, opts ...Option) *Logger {
	l := &Logger{out: out, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.color {
		l.styles = levelStyles(lipgloss.NewRenderer(out))
	}
	return l
}

// Discard returns a logger that drops every line.
func Discard() *Logger { return &Logger{out: io.Discard, now: time.Now, silent: true} }

func (l *Logger) Info(msg string)  { l.log(LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.log(LevelError, msg) }

func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

func (l *Logger) log(level Level, msg string) {
	if l == nil || l.silent {
		return
	}
	line := strings.TrimRight(msg, "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	tag := level.String()
	if l.color && l.styles != nil {
		tag = l.styles[level].Render(tag)
	}
	fmt.Fprintf(l.out, "[%s] [%s] %s\n", l.now().Format("2006-01-02 15:04:05"), tag, line)
}
