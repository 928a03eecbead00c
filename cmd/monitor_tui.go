// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/whorl/pkg/r502"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// slotItem is an occupied library slot in the slot list
type slotItem uint16

func (s slotItem) Title() string       { return fmt.Sprintf("Slot %d", uint16(s)) }
func (s slotItem) Description() string { return "" }
func (s slotItem) FilterValue() string { return fmt.Sprintf("%d", uint16(s)) }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	address  uint32
	stats    *r502.Statistics
	identify chan<- struct{}

	// Latest poll
	status      *statusMsg
	lastPollErr error

	// Identify state
	identifying bool
	step        string
	spinner     spinner.Model

	library  progress.Model
	slotList list.Model

	eventLog      []eventLogEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

type monitorTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(address uint32, stats *r502.Statistics, identify chan<- struct{}) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)
	slotList := list.New([]list.Item{}, delegate, 20, 10)
	slotList.Title = "Occupied"
	slotList.SetShowStatusBar(false)
	slotList.SetShowHelp(false)
	slotList.SetFilteringEnabled(false)

	return monitorModel{
		address:       address,
		stats:         stats,
		identify:      identify,
		spinner:       sp,
		library:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		slotList:      slotList,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		case "i":
			if !m.identifying {
				select {
				case m.identify <- struct{}{}:
					m.identifying = true
					m.step = "waiting"
					return m, m.spinner.Tick
				default:
				}
			}
		default:
			var cmd tea.Cmd
			m.slotList, cmd = m.slotList.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.slotList.SetHeight(max(5, m.height-18))

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case spinner.TickMsg:
		if !m.identifying {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.handleStatus(msg)

	case stepMsg:
		m.step = msg.step.String()

	case identifyMsg:
		m.identifying = false
		switch {
		case msg.err == nil:
			m.addLogEntry(fmt.Sprintf("Match at page %d (score %d)", msg.result.PageID, msg.result.Score), false)
		case r502.IsDeviceCode(msg.err, r502.CodeNotFound):
			m.addLogEntry("No matching template", true)
		default:
			m.addLogEntry(fmt.Sprintf("Identify failed: %s", describeError(msg.err)), true)
		}

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)
	}

	return m, nil
}

func (m *monitorModel) handleStatus(msg statusMsg) {
	if msg.err != nil {
		if m.lastPollErr == nil || m.lastPollErr.Error() != msg.err.Error() {
			m.addLogEntry(fmt.Sprintf("Poll failed: %s", describeError(msg.err)), true)
		}
		m.lastPollErr = msg.err
		return
	}
	if m.lastPollErr != nil {
		m.addLogEntry("Module responding again", false)
		m.lastPollErr = nil
	}

	if m.status != nil && m.status.templates != msg.templates {
		m.addLogEntry(fmt.Sprintf("Template count %d -> %d", m.status.templates, msg.templates), false)
	}
	if m.status == nil {
		for _, a := range msg.anomalies {
			m.addLogEntry(a.Message, true)
		}
	}

	items := make([]list.Item, len(msg.slots))
	for i, s := range msg.slots {
		items[i] = slotItem(s)
	}
	m.slotList.SetItems(items)
	m.status = &msg
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	monitorTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	monitorHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	monitorLabelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	monitorValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	monitorErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	monitorWarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	monitorBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(monitorTitleStyle.Render("WHORL - MODULE MONITOR"))
	s.WriteString("\n")
	s.WriteString(monitorHeaderStyle.Render(fmt.Sprintf("Module %08X | 'i' identify | 'r' reset stats | 'q' quit", m.address)))
	s.WriteString("\n\n")

	left := lipgloss.JoinVertical(lipgloss.Left,
		monitorBoxStyle.Render(m.viewStatus()),
		monitorBoxStyle.Render(m.viewStats()),
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", monitorBoxStyle.Render(m.slotList.View())))
	s.WriteString("\n\n")

	s.WriteString(monitorLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(monitorBoxStyle.Width(max(20, m.width-4)).Render(m.viewLog()))

	return s.String()
}

func (m monitorModel) viewStatus() string {
	var c strings.Builder

	if m.status == nil {
		c.WriteString(monitorWarningStyle.Render("Waiting for first poll..."))
		return c.String()
	}

	sp := m.status.params
	usage := 0.0
	if sp.LibraryCapacity > 0 {
		usage = float64(m.status.templates) / float64(sp.LibraryCapacity)
	}

	c.WriteString(fmt.Sprintf("%s %s\n",
		monitorLabelStyle.Render("Library:"),
		monitorValueStyle.Render(fmt.Sprintf("%d / %d", m.status.templates, sp.LibraryCapacity)),
	))
	c.WriteString(m.library.ViewAs(usage))
	c.WriteString("\n")
	c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		monitorLabelStyle.Render("Security:"), monitorValueStyle.Render(fmt.Sprintf("%d", sp.SecurityLevel)),
		monitorLabelStyle.Render("Packet:"), monitorValueStyle.Render(fmt.Sprintf("%d B", sp.PacketSizeBytes())),
	))
	c.WriteString(fmt.Sprintf("%s %s   %s %s",
		monitorLabelStyle.Render("Baud:"), monitorValueStyle.Render(fmt.Sprintf("%d", sp.BaudRate())),
		monitorLabelStyle.Render("Status:"), monitorValueStyle.Render(fmt.Sprintf("0x%04X", sp.StatusRegister)),
	))

	if m.lastPollErr != nil {
		c.WriteString("\n")
		c.WriteString(monitorErrorStyle.Render("✗ " + describeError(m.lastPollErr)))
	}
	if m.identifying {
		c.WriteString("\n")
		c.WriteString(m.spinner.View() + " " + monitorWarningStyle.Render(m.step))
	}
	return c.String()
}

func (m monitorModel) viewStats() string {
	st := m.stats.Snapshot()

	var completedPercent, avgLatency float64
	if st.Exchanges > 0 {
		completedPercent = float64(st.Completed) * 100.0 / float64(st.Exchanges)
		avgLatency = float64(st.TotalLatency.Milliseconds()) / float64(st.Exchanges)
	}
	failed := st.Exchanges - st.Completed

	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		monitorLabelStyle.Render("Exchanges:"), monitorValueStyle.Render(fmt.Sprintf("%d", st.Exchanges)),
		monitorLabelStyle.Render("Completed:"), monitorValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Completed, completedPercent)),
	))
	if failed > 0 || st.DeviceErrors > 0 {
		c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			monitorLabelStyle.Render("Failed:"), monitorErrorStyle.Render(fmt.Sprintf("%d", failed)),
			monitorLabelStyle.Render("Device errors:"), monitorWarningStyle.Render(fmt.Sprintf("%d", st.DeviceErrors)),
		))
	}
	if st.ChecksumErrors > 0 || st.Timeouts > 0 {
		c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			monitorLabelStyle.Render("Checksum:"), monitorErrorStyle.Render(fmt.Sprintf("%d", st.ChecksumErrors)),
			monitorLabelStyle.Render("Timeouts:"), monitorErrorStyle.Render(fmt.Sprintf("%d", st.Timeouts)),
		))
	}
	c.WriteString(fmt.Sprintf("%s %s   %s %s",
		monitorLabelStyle.Render("Latency:"), monitorValueStyle.Render(fmt.Sprintf("%.1f ms", avgLatency)),
		monitorLabelStyle.Render("Rate:"), monitorValueStyle.Render(fmt.Sprintf("%.1f exch/s", st.ExchangeRate)),
	))
	return c.String()
}

func (m monitorModel) viewLog() string {
	logHeight := max(5, m.height-20)

	if len(m.eventLog) == 0 {
		return monitorHeaderStyle.Render("  (no events yet)")
	}

	var c strings.Builder
	start := max(0, len(m.eventLog)-logHeight)
	for _, entry := range m.eventLog[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			c.WriteString(fmt.Sprintf("%s %s\n", monitorHeaderStyle.Render(timestamp), monitorErrorStyle.Render("✗ "+entry.message)))
		} else {
			c.WriteString(fmt.Sprintf("%s %s\n", monitorHeaderStyle.Render(timestamp), monitorWarningStyle.Render("ℹ "+entry.message)))
		}
	}
	return strings.TrimRight(c.String(), "\n")
}
