// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// cellController is the part of a session the monitor drives.
type cellController interface {
	GetAllCellVoltageTargets() ([]float32, error)
	GetErrorCount() (int, error)
	SetCellVoltage(channel int, voltage float32) error
	ClearErrors() error
}

// logEntry is one line of the monitor's event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	ctl      cellController
	linkInfo string
	interval time.Duration

	// Last poll
	targets    []float32
	errorCount int
	lastPoll   time.Time
	polling    bool
	pollFailed bool

	// Editing
	selected int
	editing  bool
	input    textinput.Model

	eventLog      []logEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type pollResultMsg struct {
	targets    []float32
	errorCount int
	err        error
}

type setResultMsg struct {
	channel int
	voltage float32
	err     error
}

type clearResultMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(ctl cellController, linkInfo string, interval time.Duration) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "3.7"
	ti.CharLimit = 12
	ti.Width = 12

	return monitorModel{
		ctl:           ctl,
		linkInfo:      linkInfo,
		interval:      interval,
		targets:       make([]float32, scpi.CellCount),
		input:         ti,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), monitorTickCmd(m.interval))
}

func monitorTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// pollCmd reads targets and error count off the UI goroutine.
func (m monitorModel) pollCmd() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		targets, err := ctl.GetAllCellVoltageTargets()
		if err != nil {
			return pollResultMsg{err: err}
		}
		n, err := ctl.GetErrorCount()
		return pollResultMsg{targets: targets, errorCount: n, err: err}
	}
}

func (m monitorModel) setCmd(channel int, voltage float32) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		return setResultMsg{channel: channel, voltage: voltage, err: ctl.SetCellVoltage(channel, voltage)}
	}
}

func (m monitorModel) clearCmd() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		return clearResultMsg{err: ctl.ClearErrors()}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		cmds := []tea.Cmd{monitorTickCmd(m.interval)}
		// Skip the poll while one is still outstanding
		if !m.polling {
			m.polling = true
			cmds = append(cmds, m.pollCmd())
		}
		return m, tea.Batch(cmds...)

	case pollResultMsg:
		m.polling = false
		m.lastPoll = time.Now()
		if msg.err != nil {
			if !m.pollFailed {
				m.addLogEntry(fmt.Sprintf("Poll failed: %v", msg.err), true)
			}
			m.pollFailed = true
			return m, nil
		}
		if m.pollFailed {
			m.addLogEntry("Device responding again", false)
		}
		m.pollFailed = false
		if msg.errorCount != m.errorCount && msg.errorCount > 0 {
			m.addLogEntry(fmt.Sprintf("Device error queue holds %d error(s)", msg.errorCount), true)
		}
		m.targets = msg.targets
		m.errorCount = msg.errorCount

	case setResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Set cell %d failed: %v", msg.channel, msg.err), true)
			return m, nil
		}
		m.targets[msg.channel] = msg.voltage
		m.addLogEntry(fmt.Sprintf("Cell %d set to %s V", msg.channel, scpi.FormatFloat(msg.voltage)), false)

	case clearResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Clear errors failed: %v", msg.err), true)
			return m, nil
		}
		m.errorCount = 0
		m.addLogEntry("Error queue cleared", false)
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < scpi.MaxChannel {
			m.selected++
		}

	case "enter", "e":
		m.editing = true
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "c":
		return m, m.clearCmd()

	case "r":
		if !m.polling {
			m.polling = true
			return m, m.pollCmd()
		}
	}
	return m, nil
}

func (m monitorModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil

	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		m.editing = false
		m.input.Blur()
		v, err := parseVoltage(m.input.Value())
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		return m, m.setCmd(m.selected, v)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("ABSCTL MONITOR"))
	s.WriteString(" ")
	status := m.linkInfo
	if m.pollFailed {
		status = warningStyle.Render("NO RESPONSE")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit up/down=select enter=set c=clear r=refresh", status)))
	s.WriteString("\n\n")

	// Cells and status side by side
	cells := boxStyle.Width(28).Render(m.renderCells(labelStyle, valueStyle))
	statusPanel := boxStyle.Width(max(m.width-36, 24)).Render(m.renderStatus(labelStyle, valueStyle, errorStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells, " ", statusPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderCells(labelStyle, valueStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("CELL TARGETS"))
	s.WriteString("\n")
	for i, v := range m.targets {
		cursor := "  "
		if i == m.selected {
			cursor = "> "
		}
		s.WriteString(fmt.Sprintf("%s%d  %s V\n", cursor, i, valueStyle.Render(fmt.Sprintf("%8.4f", v))))
	}
	return s.String()
}

func (m monitorModel) renderStatus(labelStyle, valueStyle, errorStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("STATUS"))
	s.WriteString("\n")

	errText := valueStyle.Render("0")
	if m.errorCount > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d", m.errorCount))
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Queued errors:"), errText))

	polled := "never"
	if !m.lastPoll.IsZero() {
		polled = m.lastPoll.Format("15:04:05")
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Last poll:"), valueStyle.Render(polled)))
	s.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Interval:"), valueStyle.Render(m.interval.String())))

	if m.editing {
		s.WriteString(fmt.Sprintf("Cell %d voltage: %s", m.selected, m.input.View()))
	} else {
		s.WriteString(headerStyle.Render(fmt.Sprintf("Selected cell %d", m.selected)))
	}
	return s.String()
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[startIdx:] {
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(max(m.width-4, 20)).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}
