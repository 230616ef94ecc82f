package status

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// Terminal redraws a task table in place.
type Terminal struct {
	out   io.Writer
	width func() int
	lines int
}

// NewTerminal returns a terminal renderer writing to out. Rows are clipped
// to the terminal width so the redraw can count screen lines.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, width: func() int { return terminalWidth(out) }}
}

// terminalWidth returns the column count of out, or 0 when unknown.
func terminalWidth(out io.Writer) int {
	file, ok := out.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// Render replaces the previous frame with snap.
func (t *Terminal) Render(snap Snapshot) error {
	width := t.width()
	frame := renderFrame(snap, width)
	var b strings.Builder
	if t.lines > 0 {
		fmt.Fprintf(&b, "\x1b[%dA\x1b[J", t.lines)
	}
	b.WriteString(frame)
	t.lines = screenLines(frame, width)
	_, err := io.WriteString(t.out, b.String())
	return err
}

// Finish draws the final frame and leaves it on screen.
func (t *Terminal) Finish(snap Snapshot) error {
	err := t.Render(snap)
	t.lines = 0
	return err
}

// screenLines counts the terminal rows frame occupies, including wrapped
// lines.
func screenLines(frame string, width int) int {
	lines := 0
	for _, line := range strings.Split(strings.TrimSuffix(frame, "\n"), "\n") {
		w := text.RuneWidthWithoutEscSequences(line)
		if width > 0 && w > width {
			lines += (w + width - 1) / width
			continue
		}
		lines++
	}
	return lines
}

func renderFrame(snap Snapshot, width int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if width > 0 {
		tw.Style().Size.WidthMax = width
	}
	tw.SetTitle(snap.Title)
	tw.AppendHeader(table.Row{"#", "Progress", "Size", "Speed", "ETA", "File"})
	for _, r := range snap.Rows {
		tw.AppendRow(table.Row{
			fmt.Sprintf("[%d/%d]", r.Index, r.Total),
			progressBar(r.Percent()),
			formatBytes(r.Completed) + " / " + formatBytes(r.Length),
			formatSpeed(r.Speed),
			formatETA(r),
			decoratedName(r),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tw.AppendFooter(table.Row{
		"", fmt.Sprintf("%d active, %d waiting", snap.Global.NumActive, snap.Global.NumWaiting),
		"", formatSpeed(snap.Global.DownloadSpeed), "", snap.Endpoint,
	})
	return tw.Render() + "\n"
}
