package status

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"galleria/internal/engine"
)

// Row is one task in the view.
type Row struct {
	Index     int
	Total     int
	JobID     string
	FileName  string
	Status    string
	Completed int64
	Length    int64
	Speed     int64
	Proxy     bool
	Retries   int
}

// Percent returns completion in [0,100], or -1 when the size is unknown.
func (r Row) Percent() float64 {
	if r.Length <= 0 {
		return -1
	}
	return float64(r.Completed) * 100 / float64(r.Length)
}

// Snapshot is everything one status tick shows.
type Snapshot struct {
	Title    string
	Endpoint string
	Global   engine.GlobalStat
	Rows     []Row
}

// Renderer draws snapshots.
type Renderer interface {
	Render(Snapshot) error
	// Finish is called once the gallery completes or aborts.
	Finish(Snapshot) error
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ForOutput picks the terminal view when out is a terminal and the log view
// otherwise.
func ForOutput(out io.Writer, logger *slog.Logger) Renderer {
	if IsTerminal(out) {
		return NewTerminal(out)
	}
	return NewLog(logger)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatSpeed(n int64) string {
	return formatBytes(n) + "/s"
}

func formatETA(r Row) string {
	if r.Speed <= 0 || r.Length <= 0 || r.Completed >= r.Length {
		return "--"
	}
	remaining := time.Duration(float64(r.Length-r.Completed)/float64(r.Speed)) * time.Second
	return remaining.Round(time.Second).String()
}

const barWidth = 20

func progressBar(percent float64) string {
	if percent < 0 {
		return strings.Repeat("-", barWidth) + "    ?"
	}
	filled := min(int(percent/100*barWidth), barWidth)
	return fmt.Sprintf("%s%s %3.0f%%", strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled), percent)
}

func decoratedName(r Row) string {
	name := r.FileName
	if r.Proxy {
		name += " *"
	}
	if r.Retries > 0 {
		name += fmt.Sprintf(" ↻%d", r.Retries)
	}
	return name
}
