package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	// Primary colors
	ColorGreenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	ColorRedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	ColorYellowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true)
	ColorBlueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF")).Bold(true)
	ColorCyanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))
	ColorMagentaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF")).Italic(true)

	// Object-kind styles
	CommitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true)
	TreeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF")).Bold(true)
	BlobStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	TagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF")).Bold(true)

	// Layout styles
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#5F5FFF")).
			PaddingTop(1).
			PaddingBottom(1).
			MarginBottom(1)

	InfoStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00BFFF")).
			PaddingTop(1).
			PaddingBottom(1)

	SectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Underline(true)
)

// Icons
const (
	IconCheckmark = "✓"
	IconCross     = "✗"
	IconRef       = "⎇"
	IconCommit    = "⊚"
	IconPack      = "▣"
	IconObject    = "•"
)

// Green renders a string in the green style.
func Green(s string) string { return ColorGreenStyle.Render(s) }

// Red renders a string in the red style.
func Red(s string) string { return ColorRedStyle.Render(s) }

// Yellow renders a string in the yellow style.
func Yellow(s string) string { return ColorYellowStyle.Render(s) }

// Blue renders a string in the blue style.
func Blue(s string) string { return ColorBlueStyle.Render(s) }

// Cyan renders a string in the cyan style.
func Cyan(s string) string { return ColorCyanStyle.Render(s) }

// Magenta renders a string in the magenta style.
func Magenta(s string) string { return ColorMagentaStyle.Render(s) }

// Header renders a banner line.
func Header(s string) string { return HeaderStyle.Render(s) }
