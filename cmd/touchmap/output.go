package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6"))

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

// stdoutIsTerminal reports whether stdout is an interactive terminal
func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func init() {
	// Disable colors if not in a terminal
	if !stdoutIsTerminal() {
		plain := lipgloss.NewStyle()
		titleStyle, subtitleStyle, successStyle = plain, plain, plain
		errorStyle, infoStyle, dimStyle, statStyle = plain, plain, plain, plain
	}
}

func printTitle(title string) {
	fmt.Printf("\n%s\n", titleStyle.Render("🗺  "+title))
	fmt.Println(dimStyle.Render(strings.Repeat("=", 60)))
}

func printSubtitle(subtitle string) {
	fmt.Printf("\n%s\n", subtitleStyle.Render(subtitle))
}

func printSuccess(message string) {
	fmt.Println(successStyle.Render("✓ " + message))
}

func printError(message string) {
	fmt.Println(errorStyle.Render("✗ " + message))
}

func printInfo(message string) {
	fmt.Println(infoStyle.Render("• " + message))
}

func printStat(label string, value interface{}) {
	fmt.Printf("  %s %v\n", statStyle.Render(label+":"), value)
}

func printProgress(current, total int, label string) {
	if total == 0 {
		return
	}
	percent := float64(current) / float64(total) * 100
	barLength := 40
	filled := int(percent / 100 * float64(barLength))

	bar := "[" + strings.Repeat("█", filled) + strings.Repeat("░", barLength-filled) + "]"

	fmt.Printf("\r%s %s %s", label, subtitleStyle.Render(fmt.Sprintf("%.1f%%", percent)), bar)
	if current >= total {
		fmt.Println()
	}
}
