package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/hrkit/internal/coordinator"
	"github.com/chaz8081/hrkit/internal/sensor"
)

const maxEventLines = 8

var (
	colorTitleBg = lipgloss.Color("52")
	colorTitleFg = lipgloss.Color("217")
	colorBorder  = lipgloss.Color("62")
	colorDim     = lipgloss.Color("240")
	colorOK      = lipgloss.Color("42")
	colorBPM     = lipgloss.Color("203")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorTitleFg).Background(colorTitleBg).Padding(0, 1)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	dimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	okStyle       = lipgloss.NewStyle().Foreground(colorOK)
	bpmStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorBPM)
	selectedStyle = lipgloss.NewStyle().Bold(true)
)

// coordMsg carries one coordinator event into the bubbletea loop.
type coordMsg struct {
	event  string
	sensor sensor.Sensor
	hr     sensor.HeartRate
}

type discoveryMsg struct{ on bool }

// teaObserver forwards coordinator events to the running program.
type teaObserver struct {
	send func(tea.Msg)
}

func (o *teaObserver) SensorDiscovered(s sensor.Sensor) {
	o.send(coordMsg{event: "discovered", sensor: s})
}

func (o *teaObserver) SensorConnected(s sensor.Sensor) {
	o.send(coordMsg{event: "connected", sensor: s})
}

func (o *teaObserver) SensorDisconnected(s sensor.Sensor) {
	o.send(coordMsg{event: "disconnected", sensor: s})
}

func (o *teaObserver) SensorSelected(s sensor.Sensor) {
	o.send(coordMsg{event: "selected", sensor: s})
}

func (o *teaObserver) SensorDeselected(s sensor.Sensor) {
	o.send(coordMsg{event: "deselected", sensor: s})
}

func (o *teaObserver) HeartRateReceived(hr sensor.HeartRate, from sensor.Sensor) {
	o.send(coordMsg{event: "hr", sensor: from, hr: hr})
}

type model struct {
	svc coordinator.Service

	sensors     []sensor.Sensor
	cursor      int
	selected    sensor.Sensor
	hasSelected bool
	discovering bool

	bpm    sensor.HeartRate
	bpmAt  time.Time
	hasBPM bool

	events []string
	width  int
}

func newModel(svc coordinator.Service) model {
	return model{svc: svc}
}

func (m model) Init() tea.Cmd {
	return m.setDiscovery(true)
}

func (m model) setDiscovery(on bool) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if on {
			svc.StartDiscovering()
		} else {
			svc.StopDiscovering()
		}
		return discoveryMsg{on: on}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case discoveryMsg:
		m.discovering = msg.on

	case coordMsg:
		m.apply(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.sensors)-1 {
				m.cursor++
			}
		case "enter", " ":
			if m.cursor < len(m.sensors) {
				s, svc := m.sensors[m.cursor], m.svc
				return m, func() tea.Msg { svc.Select(s); return nil }
			}
		case "d":
			if m.hasSelected {
				svc := m.svc
				return m, func() tea.Msg { svc.Deselect(); return nil }
			}
		case "s":
			return m, m.setDiscovery(!m.discovering)
		}
	}
	return m, nil
}

// apply folds a coordinator event into the view state.
func (m *model) apply(msg coordMsg) {
	switch msg.event {
	case "hr":
		m.bpm, m.bpmAt, m.hasBPM = msg.hr, time.Now(), true
		return
	case "selected":
		m.selected, m.hasSelected = msg.sensor, true
		m.hasBPM = false
	case "deselected":
		m.hasSelected = false
		m.hasBPM = false
	}

	m.sensors = m.svc.DiscoveredSensors()
	if m.cursor >= len(m.sensors) {
		m.cursor = max(len(m.sensors)-1, 0)
	}
	if m.hasSelected {
		for _, s := range m.sensors {
			if s.Is(m.selected) {
				m.selected = s
			}
		}
	}

	line := fmt.Sprintf("%s  %-12s %s", time.Now().Format("15:04:05"), msg.event, msg.sensor.Name)
	m.events = append(m.events, line)
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
}

func (m model) View() string {
	var sections []string

	status := "discovery off"
	if m.discovering {
		status = "discovering"
	}
	sections = append(sections, titleStyle.Render("hrkit")+"  "+dimStyle.Render(status))

	sections = append(sections, boxStyle.Render(m.sensorList()))
	sections = append(sections, boxStyle.Render(m.heartRate()))

	if len(m.events) > 0 {
		sections = append(sections, dimStyle.Render(strings.Join(m.events, "\n")))
	}
	sections = append(sections, dimStyle.Render("↑/↓ move · enter select · d deselect · s discovery · q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) sensorList() string {
	if len(m.sensors) == 0 {
		return dimStyle.Render("No sensors yet...")
	}
	var sb strings.Builder
	for i, s := range m.sensors {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		state := dimStyle.Render("○")
		if s.State == sensor.StateConnected {
			state = okStyle.Render("●")
		}
		line := fmt.Sprintf("%s%s %-24s %s", cursor, state, s.Name, dimStyle.Render(s.Kind.String()))
		if m.hasSelected && s.Is(m.selected) {
			line = selectedStyle.Render(line + "  [selected]")
		}
		sb.WriteString(line)
		if i < len(m.sensors)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m model) heartRate() string {
	if !m.hasSelected {
		return dimStyle.Render("Select a sensor to see its heart rate")
	}
	if !m.hasBPM {
		return fmt.Sprintf("%s  %s", m.selected.Name, dimStyle.Render("waiting for data..."))
	}
	age := time.Since(m.bpmAt).Round(time.Second)
	return fmt.Sprintf("%s  %s  %s", m.selected.Name, bpmStyle.Render(fmt.Sprintf("%d bpm", m.bpm)), dimStyle.Render(age.String()+" ago"))
}
