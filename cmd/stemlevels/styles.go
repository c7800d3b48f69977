package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorColor = lipgloss.Color("#A40000")
	mutedColor = lipgloss.Color("#888888")

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true)
)

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintKeyValue prints one aligned key-value line to stderr
func PrintKeyValue(key string, value any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", KeyStyle.Render(fmt.Sprintf("%-12s", key+":")), ValueStyle.Render(fmt.Sprint(value)))
}
