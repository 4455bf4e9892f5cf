package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	Primary  = lipgloss.Color("#1cc2e3")
	Green    = lipgloss.Color("#10B981")
	Red      = lipgloss.Color("#EF4444")
	Yellow   = lipgloss.Color("#F59E0B")
	Gray     = lipgloss.Color("#6B7280")
	DarkGray = lipgloss.Color("#374151")
	White    = lipgloss.Color("#FFFFFF")

	// App frame
	AppStyle = lipgloss.NewStyle().
			Padding(1, 2)

	// Header
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			MarginBottom(1)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(Gray).
			MarginTop(1)

	// Help
	HelpStyle = lipgloss.NewStyle().
			Foreground(Gray)

	// Provider name column
	ProviderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(White)

	// Recipient highlight
	EmailBoxStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(White).
			Background(Primary).
			Padding(0, 2)

	// Report box when every provider sent
	SuccessBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	// Report box when some provider did not send
	WarningBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Yellow).
			Padding(1, 2)

	// Common result styles
	PassStyle  = lipgloss.NewStyle().Bold(true).Foreground(Green)
	FailStyle  = lipgloss.NewStyle().Bold(true).Foreground(Red)
	WarnStyle  = lipgloss.NewStyle().Bold(true).Foreground(Yellow)
	MutedStyle = lipgloss.NewStyle().Foreground(Gray)

	// Label style for key-value displays
	LabelStyle = lipgloss.NewStyle().Foreground(Gray).Width(12)
)

// StatusStyle returns the style for an outcome status.
func StatusStyle(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "success", "sent":
		return PassStyle
	case "failure", "failed":
		return FailStyle
	case "cancelled":
		return WarnStyle
	default:
		return MutedStyle
	}
}

// FormatStatus renders an outcome status with its icon.
func FormatStatus(status string) string {
	switch strings.ToLower(status) {
	case "success", "sent":
		return PassStyle.Render("✓ " + status)
	case "failure", "failed":
		return FailStyle.Render("✗ " + status)
	case "cancelled":
		return WarnStyle.Render("○ " + status)
	default:
		return MutedStyle.Render("• " + status)
	}
}
