package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/bridge"
	"github.com/virtgfx/gpu-bridge/native/nativetest"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2E5C8A")).
			Padding(0, 1)

	ringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const logDepth = 12

type ringStats struct {
	submitted int
	completed int
}

type monitorModel struct {
	err  error
	b    *bridge.Bridge
	fake *nativetest.Renderer

	inputs   []textinput.Model
	focusIdx int

	nextID uint64
	rings  map[uint8]*ringStats
	log    []string

	configPath string
}

type loadedMsg struct {
	err  error
	b    *bridge.Bridge
	fake *nativetest.Renderer
}

type fenceMsg gpubridge.Fence

type tickMsg time.Time

func newMonitorModel(configPath string) *monitorModel {
	m := &monitorModel{
		configPath: configPath,
		nextID:     1,
		rings:      make(map[uint8]*ringStats),
	}

	ring := textinput.New()
	ring.Prompt = "ring: "
	ring.Placeholder = "0"
	ring.Width = 8
	ring.Focus()

	count := textinput.New()
	count.Prompt = "count: "
	count.Placeholder = "4"
	count.Width = 8

	m.inputs = []textinput.Model{ring, count}
	return m
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.load, tick())
}

func (m *monitorModel) load() tea.Msg {
	b, fake, err := buildBridge(m.configPath)
	if err != nil {
		return loadedMsg{err: err}
	}
	if err := b.CreateContext(1, 0, "fencemon"); err != nil {
		b.Close()
		return loadedMsg{err: err}
	}
	return loadedMsg{b: b, fake: fake}
}

func waitForFence(ch <-chan gpubridge.Fence) tea.Cmd {
	return func() tea.Msg {
		return fenceMsg(<-ch)
	}
}

func tick() tea.Cmd {
	return tea.Tick(400*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.b != nil {
				m.b.Close()
			}
			return m, tea.Quit

		case "tab":
			m.inputs[m.focusIdx].Blur()
			m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
			m.inputs[m.focusIdx].Focus()
			return m, nil

		case "enter":
			m.submit()
			return m, nil

		case "r":
			if m.fake != nil {
				m.fake.RetireFences()
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.b = msg.b
		m.fake = msg.fake
		return m, waitForFence(m.b.Completions())

	case fenceMsg:
		f := gpubridge.Fence(msg)
		m.record(f.RingIdx, false)
		m.appendLog(doneStyle.Render(
			fmt.Sprintf("fence %d completed on ring %d", f.FenceID, f.RingIdx)))
		return m, waitForFence(m.b.Completions())

	case tickMsg:
		// The reference backend has no sync thread; drive it here.
		if m.fake != nil {
			m.fake.RetireFences()
		}
		return m, tick()
	}

	var cmds []tea.Cmd
	for i := range m.inputs {
		var cmd tea.Cmd
		m.inputs[i], cmd = m.inputs[i].Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *monitorModel) submit() {
	if m.b == nil {
		return
	}

	ring, err := strconv.ParseUint(valueOr(m.inputs[0], "0"), 10, 8)
	if err != nil {
		m.appendLog(errorStyle.Render("bad ring index"))
		return
	}
	count, err := strconv.Atoi(valueOr(m.inputs[1], "4"))
	if err != nil || count < 1 || count > 256 {
		m.appendLog(errorStyle.Render("bad fence count"))
		return
	}

	for i := 0; i < count; i++ {
		f := gpubridge.Fence{
			Flags:   gpubridge.FlagFence | gpubridge.FlagInfoRingIdx,
			FenceID: m.nextID,
			CtxID:   1,
			RingIdx: uint8(ring),
		}
		m.nextID++
		if _, err := m.b.CreateFence(f); err != nil {
			m.appendLog(errorStyle.Render(fmt.Sprintf("fence %d: %v", f.FenceID, err)))
			return
		}
		m.record(f.RingIdx, true)
	}
	m.appendLog(pendingStyle.Render(
		fmt.Sprintf("submitted %d fences on ring %d", count, ring)))
}

func valueOr(in textinput.Model, def string) string {
	if v := strings.TrimSpace(in.Value()); v != "" {
		return v
	}
	return def
}

func (m *monitorModel) record(ring uint8, submitted bool) {
	st, ok := m.rings[ring]
	if !ok {
		st = &ringStats{}
		m.rings[ring] = st
	}
	if submitted {
		st.submitted++
	} else {
		st.completed++
	}
}

func (m *monitorModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > logDepth {
		m.log = m.log[len(m.log)-logDepth:]
	}
}

func (m *monitorModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.b == nil {
		return "Building bridge..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Fence Monitor"))
	b.WriteString("\n\n")

	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("  ")
	}
	b.WriteString("\n\n")

	ringIDs := make([]int, 0, len(m.rings))
	for r := range m.rings {
		ringIDs = append(ringIDs, int(r))
	}
	sort.Ints(ringIDs)

	if len(ringIDs) == 0 {
		b.WriteString(helpStyle.Render("no fences yet"))
		b.WriteString("\n")
	}
	for _, r := range ringIDs {
		st := m.rings[uint8(r)]
		pending := st.submitted - st.completed
		line := fmt.Sprintf("%s  submitted %3d  completed %3d  pending %3d",
			ringStyle.Render(fmt.Sprintf("ring %2d", r)),
			st.submitted, st.completed, pending)
		if r == 1 {
			line += helpStyle.Render("  (synchronous)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, line := range m.log {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab field • enter submit • r retire now • q quit"))
	return b.String()
}

func runInteractive(configPath string) error {
	p := tea.NewProgram(newMonitorModel(configPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
