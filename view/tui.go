package view

import (
	"context"
	"errors"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/elijahnyp/node1_dashboard/state"
)

// Controller is the command side of the dashboard.
type Controller interface {
	ToggleLed1(ctx context.Context) error
	SetLed2(ctx context.Context, n int) error
}

// SnapshotMsg replaces the model's snapshot.
type SnapshotMsg state.Snapshot

// refreshMsg makes a store-backed model re-read the store.
type refreshMsg struct{}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("#50E3C2"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2D6A80")).
			Padding(0, 1).
			Width(30)

	titleStyle = lipgloss.NewStyle().Bold(true)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#2D6A80"))

	levelStyle = lipgloss.NewStyle().Bold(true)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8CA1AE"))
)

type Model struct {
	ctx    context.Context
	ctrl   Controller
	source func() state.Snapshot
	snap   state.Snapshot
}

func NewModel(ctx context.Context, ctrl Controller, snap state.Snapshot) Model {
	return Model{ctx: ctx, ctrl: ctrl, snap: snap}
}

// NewStoreModel follows store. It reads the store again when the program
// starts and on every refreshMsg, so it always shows the latest write.
func NewStoreModel(ctx context.Context, ctrl Controller, store *state.Store) Model {
	return Model{ctx: ctx, ctrl: ctrl, source: store.Snapshot, snap: store.Snapshot()}
}

func (m Model) Snapshot() state.Snapshot {
	return m.snap
}

func (m Model) Init() tea.Cmd {
	if m.source == nil {
		return nil
	}
	return func() tea.Msg { return refreshMsg{} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = state.Snapshot(msg)
		return m, nil
	case refreshMsg:
		if m.source != nil {
			m.snap = m.source()
		}
		return m, nil
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "t", "enter":
			return m, m.toggle()
		case "left", "h", "-":
			if m.snap.Led2 > state.MinLevel {
				return m, m.setLevel(int(m.snap.Led2) - 1)
			}
		case "right", "l", "+", "=":
			if m.snap.Led2 < state.MaxLevel {
				return m, m.setLevel(int(m.snap.Led2) + 1)
			}
		case "0", "1", "2", "3", "4", "5":
			n, _ := strconv.Atoi(key) //nolint:errcheck // key is a digit
			return m, m.setLevel(n)
		}
	}
	return m, nil
}

// Commands run off the update loop and their result only shows up through
// the store.
func (m Model) toggle() tea.Cmd {
	return func() tea.Msg {
		_ = m.ctrl.ToggleLed1(m.ctx) //nolint:errcheck // logged by the dashboard
		return nil
	}
}

func (m Model) setLevel(n int) tea.Cmd {
	return func() tea.Msg {
		_ = m.ctrl.SetLed2(m.ctx, n) //nolint:errcheck // logged by the dashboard
		return nil
	}
}

func renderBadge(b Badge) string {
	if b.Color == "" {
		return levelStyle.Render(b.Text)
	}
	return lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(lipgloss.Color("#ffffff")).
		Background(lipgloss.Color(b.Color)).
		Render(b.Text)
}

func renderCard(c Card, control string) string {
	body := titleStyle.Render(c.Title) + "\n\n" + c.Label + ": " + renderBadge(c.Badge)
	if control != "" {
		body += "\n\n" + control
	}
	return cardStyle.Render(body)
}

func (m Model) View() string {
	motion := MotionCard(m.snap)
	led1 := Led1Card(m.snap)
	led2 := Led2Card(m.snap)
	row := lipgloss.JoinHorizontal(lipgloss.Top,
		renderCard(motion, ""),
		renderCard(led1, buttonStyle.Render(led1.Action)),
		renderCard(led2, Slider(m.snap.Led2)),
	)
	help := helpStyle.Render("space toggle LED1 • ←/→ or 0-5 set LED2 • q quit")
	return lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("Node1 Dashboard"), row, help) + "\n"
}

// Run shows the dashboard until the user quits or ctx ends. Writes that land
// before the subscription are picked up by the model's first read; later
// ones trigger a refresh.
func Run(ctx context.Context, ctrl Controller, store *state.Store, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewStoreModel(ctx, ctrl, store), opts...)
	cancel := store.Subscribe("tui", func(state.Snapshot) { p.Send(refreshMsg{}) })
	defer cancel()
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
