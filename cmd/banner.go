package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(12)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 2)
)

// bannerLine is one label/value row of the startup banner.
type bannerLine struct {
	label string
	value string
}

// printBanner writes the startup banner to w. It is the only output visible
// in the terminal during normal operation; structured logs go to the log file.
func printBanner(w io.Writer, version string, lines []bannerLine) {
	// Honour NO_COLOR and non-terminal outputs.
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())

	rows := titleStyle.Render("verimail "+version) + "\n"
	for _, l := range lines {
		rows += "\n" + labelStyle.Render(l.label) + l.value
	}
	_, _ = fmt.Fprintln(w, boxStyle.Render(rows))
}
