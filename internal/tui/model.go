package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BTreeMap/StepFlow/internal/flow"
	"github.com/BTreeMap/StepFlow/internal/models"
)

const (
	refreshInterval = 100 * time.Millisecond
	actionTimeout   = 30 * time.Second
	saveTimeout     = 5 * time.Second
)

type stage int

const (
	stageOnboarding stage = iota
	stageAuth
	stageDone
)

type tickMsg time.Time

// actionDoneMsg reports the end of a controller call that may reach the provider.
type actionDoneMsg struct{ err error }

type profileSavedMsg struct{ err error }

type model struct {
	cfg    Opts
	styles styles
	stage  stage

	onboarding *flow.Controller
	auth       *flow.AuthFlow
	answers    map[string]any

	snap    models.FlowSnapshot
	cursor  int
	focus   string // field receiving typed text, "" for the current step's field
	pending bool
	notice  string

	result *models.AuthResult
	saved  bool

	width  int
	height int
}

func newModel(opts ...Option) (model, error) {
	cfg, err := resolveOpts(opts...)
	if err != nil {
		return model{}, err
	}
	m := model{cfg: cfg, styles: defaultStyles()}
	if cfg.SkipOnboarding {
		if err := m.startAuth(); err != nil {
			return model{}, err
		}
		return m, nil
	}

	def, err := cfg.definition(models.FlowKindOnboarding)
	if err != nil {
		return model{}, err
	}
	m.onboarding, err = flow.NewOnboarding(def)
	if err != nil {
		return model{}, err
	}
	m.stage = stageOnboarding
	m.refresh()
	return m, nil
}

func (m *model) startAuth() error {
	def, err := m.cfg.definition(models.FlowKindAuth)
	if err != nil {
		return err
	}
	coord := flow.NewCoordinator(m.cfg.Provider,
		flow.WithMode(m.cfg.Mode),
		flow.WithCodeLength(m.cfg.CodeLength),
		flow.WithCooldown(flow.NewCooldown(flow.WithCooldownDuration(m.cfg.ResendCooldown))),
	)
	m.auth, err = flow.NewAuthFlow(def, coord)
	if err != nil {
		return err
	}
	m.stage = stageAuth
	m.focus = ""
	m.refresh()
	slog.Debug("tui: authentication started", "mode", m.cfg.Mode, "onboarded", m.answers != nil)
	return nil
}

// close releases both flows. It is idempotent.
func (m model) close() {
	if m.onboarding != nil {
		m.onboarding.Close()
	}
	if m.auth != nil {
		m.auth.Close()
	}
}

func (m model) controller() *flow.Controller {
	switch {
	case m.stage == stageOnboarding:
		return m.onboarding
	case m.auth != nil:
		return m.auth.Controller
	}
	return nil
}

// refresh re-reads the active controller. A step change resets the option cursor to the
// current selection and the text focus to the step's own field.
func (m *model) refresh() {
	c := m.controller()
	if c == nil {
		return
	}
	prev := m.snap.Step.ID
	m.snap = c.Snapshot()
	if m.snap.Step.ID == prev {
		return
	}
	m.focus = ""
	m.cursor = 0
	selected := m.snap.Values[m.snap.Step.FieldKey()]
	for i, o := range m.snap.Step.Options {
		if selected.Has(o.ID) {
			m.cursor = i
			break
		}
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tickCmd()
	case actionDoneMsg:
		m.pending = false
		m.notice = noticeFor(msg.err)
		return m.afterAction()
	case profileSavedMsg:
		if msg.err != nil {
			slog.Error("tui: failed to save profile", "error", msg.err)
			m.notice = "Your account is ready, but the profile could not be saved."
		} else {
			m.saved = true
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// afterAction moves between stages once the active flow completes.
func (m model) afterAction() (tea.Model, tea.Cmd) {
	m.refresh()
	switch m.stage {
	case stageOnboarding:
		if !m.onboarding.Completed() {
			return m, nil
		}
		if r, ok := m.onboarding.Result().(*flow.OnboardingResult); ok {
			m.answers = r.Answers
		}
		if err := m.startAuth(); err != nil {
			m.notice = err.Error()
		}
	case stageAuth:
		if !m.auth.Completed() {
			return m, nil
		}
		m.result, _ = m.auth.Result().(*models.AuthResult)
		m.stage = stageDone
		return m, m.saveProfileCmd()
	}
	return m, nil
}

func (m model) saveProfileCmd() tea.Cmd {
	st := m.cfg.Store
	if st == nil || !flow.NeedsProfile(m.result) {
		return nil
	}
	profile := flow.BuildProfile(m.result.Session.User, m.result.FullName, m.answers, time.Now().UTC())
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		return profileSavedMsg{err: st.SaveProfile(ctx, profile)}
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.stage == stageDone {
		switch key {
		case "q", "enter", "esc":
			return m, tea.Quit
		}
		return m, nil
	}
	if m.pending {
		return m, nil
	}

	c := m.controller()
	step := m.snap.Step
	m.notice = ""
	switch key {
	case "enter":
		m.pending = true
		return m, runCmd(c.Advance)
	case "esc":
		if m.snap.StepIndex == 0 {
			return m, tea.Quit
		}
		m.notice = noticeFor(c.Back())
	case "up":
		if step.Kind.IsSelect() && m.cursor > 0 {
			m.cursor--
		}
	case "down":
		if step.Kind.IsSelect() && m.cursor < len(step.Options)-1 {
			m.cursor++
		}
	case "tab":
		m.toggle()
	case "ctrl+r":
		if m.auth != nil {
			m.pending = true
			return m, runCmd(m.auth.Resend)
		}
	case "ctrl+o":
		if m.auth != nil && m.snap.Error != nil && m.snap.Error.ContinueAnyway {
			m.pending = true
			return m, runCmd(m.auth.ContinueAnyway)
		}
	case "ctrl+d":
		c.DismissError()
	case "backspace":
		m.edit(func(s string) string {
			r := []rune(s)
			if len(r) == 0 {
				return s
			}
			return string(r[:len(r)-1])
		})
	case " ":
		if step.Kind.IsSelect() {
			m.choose()
		} else {
			m.edit(func(s string) string { return s + " " })
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.edit(func(s string) string { return s + string(msg.Runes) })
		}
	}
	m.refresh()
	return m, nil
}

// toggle switches the auth mode on the welcome step and the text focus between email and
// full name on the sign-up email step.
func (m *model) toggle() {
	if m.auth == nil || m.stage != stageAuth {
		return
	}
	switch m.snap.Step.ID {
	case models.StepWelcome:
		if m.auth.Mode() == models.AuthModeSignup {
			m.auth.SetMode(models.AuthModeLogin)
		} else {
			m.auth.SetMode(models.AuthModeSignup)
		}
	case models.StepEmail:
		if m.focus == "" && m.auth.Mode() == models.AuthModeSignup {
			m.focus = models.FieldFullName
		} else {
			m.focus = ""
		}
	}
}

// field returns the field typed text goes to.
func (m model) field() string {
	if m.focus != "" {
		return m.focus
	}
	return m.snap.Step.FieldKey()
}

func (m *model) edit(fn func(string) string) {
	step := m.snap.Step
	if !step.HasInput() || step.Kind.IsSelect() {
		return
	}
	field := m.field()
	m.notice = noticeFor(m.controller().SetText(field, fn(m.snap.Values[field].Text)))
}

func (m *model) choose() {
	step := m.snap.Step
	if m.cursor >= len(step.Options) {
		return
	}
	id := step.Options[m.cursor].ID
	c := m.controller()
	var err error
	if step.Kind == models.InputMultiSelect {
		err = c.Toggle(step.FieldKey(), id)
	} else {
		err = c.Select(step.FieldKey(), id)
	}
	m.notice = noticeFor(err)
}

// noticeFor turns a returned controller error into a one-line notice. Rejections that the
// snapshot already shows produce none.
func noticeFor(err error) string {
	switch {
	case err == nil,
		errors.Is(err, flow.ErrTransitionInFlight),
		errors.Is(err, flow.ErrRequestInFlight):
		return ""
	case errors.Is(err, flow.ErrCooldownActive):
		return "Please wait before requesting another code."
	case errors.Is(err, flow.ErrCodeNotSent):
		return "No code has been sent yet."
	case errors.Is(err, flow.ErrOptionDisabled):
		return "That option is not available."
	case errors.Is(err, flow.ErrFlowClosed):
		return "This flow has been closed."
	}
	return err.Error()
}

func runCmd(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{err: fn(ctx)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
