package tui

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/StepFlow/internal/models"
)

const (
	minWidth   = 50
	minHeight  = 16
	progressW  = 20
	helpLine   = "enter continue | esc back | up/down move | space choose | tab mode/name | ctrl+c quit"
	doneHelp   = "Press q to quit."
	textCursor = "_"
)

func (m model) View() string {
	if m.width > 0 && m.height > 0 && (m.width < minWidth || m.height < minHeight) {
		return joinLines([]string{
			m.styles.Warning.Render(fmt.Sprintf("Terminal too small (%dx%d).", m.width, m.height)),
			m.styles.Muted.Render(fmt.Sprintf("Resize to at least %dx%d.", minWidth, minHeight)),
		}) + "\n"
	}

	lines := []string{m.styles.Title.Render("StepFlow | " + m.heading()), ""}
	if m.stage == stageDone {
		lines = append(lines, m.doneLines()...)
		return joinLines(lines) + "\n"
	}

	lines = append(lines, m.progressLine(), "")
	lines = append(lines, m.styles.Sheet.Render(joinLines(m.sheetLines())))
	if m.notice != "" {
		lines = append(lines, "", m.styles.Warning.Render(m.notice))
	}
	lines = append(lines, "", m.styles.Muted.Render(helpLine))
	return joinLines(lines) + "\n"
}

func (m model) heading() string {
	switch {
	case m.stage == stageOnboarding:
		return "Onboarding"
	case m.snap.Mode == models.AuthModeLogin:
		return "Log in"
	}
	return "Sign up"
}

func (m model) progressLine() string {
	p := m.snap.Progress
	filled := 0
	if p.TotalSteps > 0 {
		filled = progressW * p.CompletedSteps / p.TotalSteps
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressW-filled)
	return m.styles.Muted.Render(fmt.Sprintf("Step %d of %d  [%s] %d%%", p.CurrentStep, p.TotalSteps, bar, p.Percentage))
}

// sheetLines renders the current step. The title dims while the step is exiting.
func (m model) sheetLines() []string {
	step := m.snap.Step
	title := step.Title
	if title == "" {
		title = step.ID
	}
	titleStyle := m.styles.Title
	if m.snap.Phase == models.PhaseExiting {
		titleStyle = m.styles.Muted
	}
	lines := []string{titleStyle.Render(title)}
	if step.Description != "" {
		lines = append(lines, m.styles.Muted.Render(step.Description))
	}
	lines = append(lines, "")

	switch {
	case step.Kind.IsSelect():
		lines = append(lines, m.optionLines()...)
	case step.HasInput():
		lines = append(lines, m.inputLine(step.FieldKey(), step.Placeholder))
		if step.ID == models.StepEmail && m.snap.Mode == models.AuthModeSignup {
			lines = append(lines, m.inputLine(models.FieldFullName, "Full name (optional)"))
		}
	case step.ID == models.StepWelcome:
		lines = append(lines, m.styles.Text.Render("Mode: "+m.heading()), m.styles.Muted.Render("tab switches between sign up and log in"))
	}

	if e := m.snap.Error; e != nil {
		lines = append(lines, "", m.styles.Error.Render(e.Message))
		if e.ContinueAnyway {
			lines = append(lines, m.styles.Accent.Render("ctrl+o continue with log in"))
		}
	}
	if cd := m.snap.Cooldown; cd != nil && step.ID == models.StepVerification {
		if cd.CanTrigger() {
			lines = append(lines, "", m.styles.Accent.Render("ctrl+r resend code"))
		} else {
			lines = append(lines, "", m.styles.Muted.Render(fmt.Sprintf("Resend available in %ds", cd.RemainingSeconds)))
		}
	}
	if m.snap.Busy || m.pending {
		lines = append(lines, "", m.styles.Muted.Render("Working..."))
	}
	return lines
}

func (m model) optionLines() []string {
	step := m.snap.Step
	value := m.snap.Values[step.FieldKey()]
	lines := make([]string, 0, len(step.Options))
	for i, o := range step.Options {
		mark := "( )"
		if step.Kind == models.InputMultiSelect {
			mark = "[ ]"
		}
		if value.Has(o.ID) {
			mark = strings.Replace(mark, " ", "x", 1)
		}
		pointer := "  "
		style := m.styles.Text
		if i == m.cursor {
			pointer = "> "
			style = m.styles.Focus
		}
		if o.Disabled {
			style = m.styles.Disabled
		}
		line := pointer + mark + " " + o.Label
		if o.Description != "" {
			line += m.styles.Muted.Render("  " + o.Description)
		}
		lines = append(lines, style.Render(line))
	}
	return lines
}

func (m model) inputLine(field, placeholder string) string {
	text := m.snap.Values[field].Text
	focused := m.field() == field
	switch {
	case text == "" && !focused:
		return m.styles.Muted.Render("  " + placeholder)
	case text == "":
		return m.styles.Focus.Render("> ") + m.styles.Muted.Render(placeholder) + textCursor
	case focused:
		return m.styles.Focus.Render("> "+text) + textCursor
	}
	return m.styles.Text.Render("  " + text)
}

func (m model) doneLines() []string {
	if m.result == nil {
		return []string{m.styles.Warning.Render("The flow ended without a session."), "", m.styles.Muted.Render(doneHelp)}
	}
	user := m.result.Session.User
	lines := []string{
		m.styles.Success.Render("You're in!"),
		m.styles.Text.Render("Email: " + user.Email),
		m.styles.Text.Render("User:  " + user.UserID),
	}
	if m.saved {
		lines = append(lines, m.styles.Muted.Render("Profile saved."))
	}
	if m.notice != "" {
		lines = append(lines, m.styles.Warning.Render(m.notice))
	}
	return append(lines, "", m.styles.Muted.Render(doneHelp))
}
