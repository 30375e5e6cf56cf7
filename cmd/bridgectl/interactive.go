package main

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/nativebind/bridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateList modelState = iota
	stateDetail
	stateEdit
)

type inspectorModel struct {
	err      error
	cfg      bridge.Config
	rt       *bridge.Runtime
	world    *world
	status   string
	rows     []objectRow
	assoc    int
	input    textinput.Model
	selected int
	pawns    int
	state    modelState
}

func newInspectorModel(cfg bridge.Config, pawns int) *inspectorModel {
	return &inspectorModel{cfg: cfg, pawns: pawns, state: stateList}
}

type loadedMsg struct {
	err   error
	rt    *bridge.Runtime
	world *world
}

type refreshMsg struct {
	err    error
	rows   []objectRow
	assoc  int
	status string
}

func (m *inspectorModel) Init() tea.Cmd {
	return m.load
}

func (m *inspectorModel) load() tea.Msg {
	ctx := context.Background()
	rt, err := bridge.New(ctx, m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	var w *world
	if err := rt.Send(ctx, func(context.Context) error {
		w, err = buildWorld(rt)
		return err
	}); err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}
	if err := w.populate(ctx, m.pawns); err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt, world: w}
}

// do runs fn on the game thread and re-renders the object list. The
// status fn returns is shown on success.
func (m *inspectorModel) do(fn func() (string, error)) tea.Cmd {
	w := m.world
	return func() tea.Msg {
		var msg refreshMsg
		msg.err = w.rt.Send(context.Background(), func(context.Context) error {
			if fn != nil {
				status, err := fn()
				if err != nil {
					return err
				}
				msg.status = status
			}
			msg.rows = w.describe()
			msg.assoc = len(w.rt.Snapshot())
			return nil
		})
		return msg
	}
}

func (m *inspectorModel) current() (objectRow, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return objectRow{}, false
	}
	return m.rows[m.selected], true
}

func (m *inspectorModel) quit() (tea.Model, tea.Cmd) {
	if m.rt != nil {
		m.rt.Close(context.Background())
	}
	return m, tea.Quit
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEdit {
			return m.updateEdit(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m.quit()

		case "up", "k":
			if m.state == stateList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateList && m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "enter":
			if m.state == stateList {
				m.state = stateDetail
			}

		case "esc":
			m.state = stateList

		case "s":
			if m.world != nil {
				w := m.world
				return m, m.do(func() (string, error) {
					return "spawned a pawn", w.populateLocked(1)
				})
			}

		case "d":
			row, ok := m.current()
			if !ok || m.world == nil {
				break
			}
			w := m.world
			return m, m.do(func() (string, error) {
				o, err := w.rt.Materialize(row.Ptr)
				if err != nil {
					return "", err
				}
				if err := o.Destroy(); err != nil {
					return "", err
				}
				w.unpin(row.Ptr)
				return fmt.Sprintf("destroyed 0x%08x", row.Ptr), nil
			})

		case "g":
			if m.rt == nil {
				break
			}
			rt := m.rt
			runtime.GC()
			return m, m.do(func() (string, error) {
				return fmt.Sprintf("swept %d collected wrappers", rt.Sweep()), nil
			})

		case "e":
			row, ok := m.current()
			if ok && m.state == stateDetail && strings.HasPrefix(row.Class, "Pawn") && !strings.Contains(row.Class, "default") {
				m.input = textinput.New()
				m.input.Prompt = "Health: "
				m.input.Placeholder = "float32"
				m.input.Width = 20
				m.input.Focus()
				m.state = stateEdit
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.world = msg.world
		return m, m.do(func() (string, error) { return "world loaded", nil })

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
			m.assoc = msg.assoc
			if msg.status != "" {
				m.status = msg.status
			}
		}
		if m.selected >= len(m.rows) {
			m.selected = max(len(m.rows)-1, 0)
		}
	}
	return m, nil
}

func (m *inspectorModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc":
		m.state = stateDetail
		return m, nil
	case "enter":
		m.state = stateDetail
		v, err := strconv.ParseFloat(m.input.Value(), 32)
		if err != nil {
			m.err = err
			return m, nil
		}
		row, ok := m.current()
		if !ok {
			return m, nil
		}
		w := m.world
		return m, m.do(func() (string, error) {
			o, err := w.rt.Materialize(row.Ptr)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("set Health of 0x%08x", row.Ptr), w.health.Set(o, float32(v))
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *inspectorModel) View() string {
	if m.world == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Loading world..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Native Object Inspector"))
	fmt.Fprintf(&b, " %s heap, %d objects, %d associations\n\n", m.cfg.Memory.Backend, len(m.rows), m.assoc)

	switch m.state {
	case stateList:
		for i, r := range m.rows {
			line := fmt.Sprintf("0x%08x  %s", r.Ptr, r.Class)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + classStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter inspect • s spawn • d destroy • g gc+sweep • q quit"))

	case stateDetail, stateEdit:
		row, ok := m.current()
		if !ok {
			b.WriteString("No object selected\n")
			break
		}
		fmt.Fprintf(&b, "%s at 0x%08x\n\n", classStyle.Render(row.Class), row.Ptr)
		if len(row.Props) == 0 {
			b.WriteString("  (no properties)\n")
		}
		for _, p := range row.Props {
			fmt.Fprintf(&b, "  %-10s %s %s\n", p.Name, typeStyle.Render(fmt.Sprintf("%-12s", p.Type)), p.Value)
		}
		b.WriteString("\n")
		if m.state == stateEdit {
			b.WriteString(m.input.View())
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("enter apply • esc cancel"))
		} else {
			b.WriteString(helpStyle.Render("e edit health • d destroy • esc back • q quit"))
		}
	}

	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.status != "" {
		b.WriteString(resultStyle.Render(m.status))
	}
	return b.String()
}

func runInteractive(cfg bridge.Config, pawns int) error {
	p := tea.NewProgram(newInspectorModel(cfg, pawns), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
