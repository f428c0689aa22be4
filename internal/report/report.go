// Package report prints the per-host outcome table at the end of a deploy
// and maps results to the process exit code.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"fleetdeploy/internal/deployerr"
	"fleetdeploy/internal/models"
	"fleetdeploy/internal/ui"
)

const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2

	defaultOutputLines = 10
)

type Reporter struct {
	w           io.Writer
	styles      ui.Styles
	outputLines int
}

// New returns a reporter writing to w. Colours are only used when w is a
// terminal that supports them.
func New(w io.Writer, theme ui.Theme) *Reporter {
	return &Reporter{
		w:           w,
		styles:      ui.NewStyles(lipgloss.NewRenderer(w), theme),
		outputLines: defaultOutputLines,
	}
}

// Render writes the result table, the tail of the remote output for each
// failed activation and the summary line.
func (r *Reporter) Render(results []models.DeployResult) error {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{res.Host, status(res), formatDuration(res.Duration), detail(res)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.styles.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.styles.Header
			}
			if col == 1 && row >= 0 && row < len(results) {
				if results[row].Succeeded() {
					return r.styles.Cell.Inherit(r.styles.Success)
				}
				return r.styles.Cell.Inherit(r.styles.Error)
			}
			return r.styles.Cell
		}).
		Headers("HOST", "STATUS", "TIME", "DETAIL").
		Rows(rows...)

	if _, err := fmt.Fprintln(r.w, tbl.Render()); err != nil {
		return err
	}

	for _, res := range results {
		if res.Err == nil || len(res.Err.Output) == 0 {
			continue
		}
		fmt.Fprintf(r.w, "\n%s %s\n", r.styles.Host.Render(res.Host), r.styles.Description.Render("output:"))
		fmt.Fprintln(r.w, r.styles.Output.Render(tail(string(res.Err.Output), r.outputLines)))
	}

	line := Summary(results)
	if models.AllSucceeded(results) {
		line = r.styles.Success.Render(line)
	} else {
		line = r.styles.Error.Render(line)
	}
	_, err := fmt.Fprintln(r.w, "\n"+line)
	return err
}

// Summary is the closing line, e.g. "Deployed to 3/4 host(s), 1 failed".
func Summary(results []models.DeployResult) string {
	ok := 0
	for _, res := range results {
		if res.Succeeded() {
			ok++
		}
	}
	s := fmt.Sprintf("Deployed to %d/%d host(s)", ok, len(results))
	if failed := len(results) - ok; failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}

// ExitCode is 0 only when every host succeeded.
func ExitCode(results []models.DeployResult) int {
	if len(results) == 0 {
		return ExitUsage
	}
	if models.AllSucceeded(results) {
		return ExitOK
	}
	return ExitFailed
}

func status(res models.DeployResult) string {
	if res.Succeeded() {
		return "ok"
	}
	if res.Err.Kind == deployerr.Canceled {
		return "canceled"
	}
	return "failed"
}

func detail(res models.DeployResult) string {
	if res.Err == nil {
		if res.Attempts > 1 {
			return fmt.Sprintf("connected after %d attempts", res.Attempts)
		}
		return ""
	}
	e := res.Err
	d := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Kind == deployerr.ActivationError && e.ExitStatus > 0 {
		d += fmt.Sprintf(" (exit status %d)", e.ExitStatus)
	}
	if e.Err != nil {
		d += ": " + firstLine(e.Err.Error())
	}
	return d
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = append([]string{fmt.Sprintf("... (%d lines omitted)", len(lines)-n)}, lines[len(lines)-n:]...)
	}
	return strings.Join(lines, "\n")
}
