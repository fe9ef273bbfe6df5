package report

import "github.com/charmbracelet/lipgloss"

var (
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA"))
	SubtextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	BorderStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#555555")).Padding(0, 1)
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	// Trend direction colors
	TrendUpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	TrendDownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	TrendStableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))

	// Risk level colors
	RiskLowStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	RiskMedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	RiskHighStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	RiskUnknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	// Profit/loss tags on past transactions
	ProfitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	LossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	NeutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)
