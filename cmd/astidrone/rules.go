package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/asticode/go-astidrone"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingRight(2)
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the commands the drone accepts and their constraints",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderRules(cmd.OutOrStdout(), astidrone.Rules())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func renderRules(w io.Writer, rs []astidrone.CommandRule) {
	// Build cells
	header := []string{"TOKEN", "CODE", "ARGUMENTS", "RESPONSE", "IN FLIGHT", "IMMEDIATE"}
	rows := [][]string{}
	for _, r := range rs {
		var as []string
		for _, a := range r.Arguments {
			as = append(as, a.Describe())
		}
		rows = append(rows, []string{
			r.Token,
			r.Code.String(),
			strings.Join(as, ", "),
			r.Response.String(),
			yesNo(r.MustBeInFlight),
			yesNo(r.Immediate),
		})
	}

	// Get widths
	widths := make([]int, len(header))
	for _, row := range append([][]string{header}, rows...) {
		for i, c := range row {
			if l := lipgloss.Width(c); l > widths[i] {
				widths[i] = l
			}
		}
	}

	// Render
	fmt.Fprintln(w, renderRow(header, widths, func(int) lipgloss.Style { return headerStyle }))
	for _, row := range rows {
		fmt.Fprintln(w, renderRow(row, widths, func(i int) lipgloss.Style {
			if row[i] == "" || row[i] == "no" {
				return dimStyle
			}
			return cellStyle
		}))
	}
}

func renderRow(cells []string, widths []int, style func(i int) lipgloss.Style) string {
	var ss []string
	for i, c := range cells {
		if c == "" {
			c = "-"
		}
		ss = append(ss, style(i).Width(widths[i]+2).Render(c))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, ss...)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
