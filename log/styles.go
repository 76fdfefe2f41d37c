package log

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.uber.org/zap/zapcore"
)

// styles renders level badges and report titles for console output.
type styles struct {
	levels map[Level]lipgloss.Style
	title  lipgloss.Style
	file   lipgloss.Style
}

func newStyles(w io.Writer, color bool) *styles {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	badge := r.NewStyle().Width(6)
	return &styles{
		levels: map[Level]lipgloss.Style{
			LevelTrace:  badge.Foreground(lipgloss.Color("240")),
			LevelDebug:  badge.Foreground(lipgloss.Color("245")),
			LevelInfo:   badge.Foreground(lipgloss.Color("39")),
			LevelNotice: badge.Foreground(lipgloss.Color("42")),
			LevelWarn:   badge.Foreground(lipgloss.Color("214")).Bold(true),
			LevelError:  badge.Foreground(lipgloss.Color("196")).Bold(true),
		},
		title: r.NewStyle().Bold(true).Underline(true),
		file:  r.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

func (s *styles) encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	level := Level(l)
	name := strings.ToUpper(level.String())
	if style, ok := s.levels[level]; ok {
		enc.AppendString(style.Render(name))
		return
	}
	enc.AppendString(name)
}

func jsonLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(Level(l).String())
}
