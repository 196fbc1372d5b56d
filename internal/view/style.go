package view

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Bold(true)

	badgeBase = lipgloss.NewStyle().Padding(0, 1).Bold(true)
	badges    = map[string]lipgloss.Style{
		"high":      badgeBase.Background(lipgloss.Color("160")).Foreground(lipgloss.Color("231")),
		"medium":    badgeBase.Background(lipgloss.Color("214")).Foreground(lipgloss.Color("16")),
		"low":       badgeBase.Background(lipgloss.Color("34")).Foreground(lipgloss.Color("231")),
		"completed": badgeBase.Background(lipgloss.Color("34")).Foreground(lipgloss.Color("231")),
		"draft":     badgeBase.Background(lipgloss.Color("244")).Foreground(lipgloss.Color("231")),
		"active":    badgeBase.Background(lipgloss.Color("33")).Foreground(lipgloss.Color("231")),
	}

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func Title(s string) string { return titleStyle.Render(s) }
func Muted(s string) string { return mutedStyle.Render(s) }
func ErrorText(s string) string { return errorStyle.Render(s) }
func Label(s string) string { return labelStyle.Render(s) }

// Highlight marks the selected row.
func Highlight(s string) string { return selectedStyle.Render(s) }

// Badge renders a status or priority tag, upper-cased.
func Badge(kind string) string {
	st, ok := badges[strings.ToLower(kind)]
	if !ok {
		st = badgeBase
	}
	return st.Render(strings.ToUpper(kind))
}

// Box frames a panel with its title.
func Box(title, body string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, Title(title), body))
}

// Field renders "label: value", substituting empty for a blank value.
func Field(label, value, empty string) string {
	if strings.TrimSpace(value) == "" {
		value = Muted(empty)
	}
	return Label(label+":") + " " + value
}

func noticeLine(n Notice) string {
	switch n.Level {
	case LevelError:
		return errorStyle.Render("✗ " + n.Text)
	case LevelSuccess:
		return successStyle.Render("✓ " + n.Text)
	default:
		return mutedStyle.Render("• " + n.Text)
	}
}
