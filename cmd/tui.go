// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/logger"
	"github.com/Thermoquad/crucible/pkg/samplelog"
	"github.com/Thermoquad/crucible/pkg/scheduler"
)

const maxSampleRows = 200

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// dashboardModel is the Bubble Tea model for run and poll
type dashboardModel struct {
	sched    *scheduler.Scheduler
	station  *station
	fields   []string
	cancel   context.CancelFunc
	samples  table.Model
	spinner  spinner.Model
	state    scheduler.State
	statuses []device.Status

	eventLog      []eventLogEntry
	maxLogEntries int

	width    int
	height   int
	finished bool
	runErr   error
	quitting bool
}

// Messages
type dashboardTickMsg time.Time
type sampleMsg scheduler.Sample
type eventMsg scheduler.Event
type statusMsg []device.Status
type runDoneMsg struct{ err error }

func initialDashboardModel(s *scheduler.Scheduler, st *station, cancel context.CancelFunc) dashboardModel {
	fields := s.Fields()

	cols := []table.Column{
		{Title: "Elapsed", Width: 9},
		{Title: "Step", Width: 4},
		{Title: "Phase", Width: 8},
	}
	for _, f := range fields {
		cols = append(cols, table.Column{Title: f, Width: max(len(f), 10)})
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithHeight(10),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return dashboardModel{
		sched:         s,
		station:       st,
		fields:        fields,
		cancel:        cancel,
		samples:       t,
		spinner:       sp,
		state:         s.State(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(dashboardTickCmd(), m.spinner.Tick)
}

func dashboardTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return dashboardTickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.samples.SetHeight(max(m.height-22, 5))

	case dashboardTickMsg:
		m.state = m.sched.State()
		m.statuses = m.sched.Status().Snapshot()
		return m, dashboardTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.statuses = msg
		for _, s := range msg {
			if !s.Online {
				m.addLogEntry(fmt.Sprintf("%s offline: %s", s.Name, s.LastError), true)
			}
		}

	case sampleMsg:
		m.addSample(scheduler.Sample(msg))
		m.state = m.sched.State()

	case eventMsg:
		ev := scheduler.Event(msg)
		isError := ev.Kind == scheduler.EventSetFailed || ev.Kind == scheduler.EventQueryFailed
		m.addLogEntry(ev.String(), isError)
		m.state = m.sched.State()

	case runDoneMsg:
		m.finished = true
		m.runErr = msg.err
		m.state = m.sched.State()
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("run ended: %v", msg.err), true)
		} else {
			m.addLogEntry("run finished, press q to exit", false)
		}
	}

	return m, nil
}

func (m *dashboardModel) addSample(s scheduler.Sample) {
	row := table.Row{
		s.Elapsed.Round(time.Second).String(),
		fmt.Sprint(s.Step),
		s.Phase.String(),
	}
	for _, f := range m.fields {
		if v, ok := s.Values[f]; ok {
			row = append(row, fmt.Sprintf("%.4g", v))
		} else {
			row = append(row, "--")
		}
	}

	rows := append(m.samples.Rows(), row)
	if len(rows) > maxSampleRows {
		rows = rows[len(rows)-maxSampleRows:]
	}
	m.samples.SetRows(rows)
	m.samples.GotoBottom()
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Stopping...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("CRUCIBLE"))
	s.WriteString("\n")
	hint := "Press 'q' to stop"
	if m.finished {
		hint = "Finished, press 'q' to exit"
		if m.runErr != nil {
			hint = "Failed, press 'q' to exit"
		}
	}
	s.WriteString(dimStyle.Render(fmt.Sprintf("Run %s | %s | %s",
		m.state.RunID, strings.Join(m.station.links, ", "), hint)))
	s.WriteString("\n\n")

	// Progress
	var progress strings.Builder
	phase := valueStyle.Render(m.state.Phase.String())
	switch {
	case m.state.Ramping:
		phase = m.spinner.View() + " " + infoStyle.Render("ramping")
	case m.state.Stopped:
		phase = errorStyle.Render("stopped")
	}
	if m.state.Steps > 0 {
		progress.WriteString(fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Step:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.state.Step, m.state.Steps)),
			labelStyle.Render("Phase:"), phase,
		))
		if m.state.Phase == scheduler.PhaseLogging {
			left := m.state.StepDuration - time.Since(m.state.StepStart)
			progress.WriteString(fmt.Sprintf("   %s %s",
				labelStyle.Render("Remaining:"), valueStyle.Render(max(left, 0).Round(time.Second).String())))
		}
	} else {
		progress.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Phase:"), phase))
	}
	progress.WriteString("\n")

	if m.state.HasTemperature {
		progress.WriteString(fmt.Sprintf("%s %s",
			labelStyle.Render("Temperature:"), valueStyle.Render(fmt.Sprintf("%.0f°C", m.state.Temperature))))
		if m.state.HasSetpoint {
			progress.WriteString(fmt.Sprintf(" (setpoint %.0f°C)", m.state.Setpoint))
		}
		progress.WriteString("\n")
	}

	var devices []string
	for _, ds := range m.statuses {
		if ds.Online {
			devices = append(devices, onlineStyle.Render("● ")+ds.Name)
		} else {
			devices = append(devices, offlineStyle.Render("● ")+ds.Name)
		}
	}
	if len(devices) > 0 {
		progress.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Devices:"), strings.Join(devices, "  ")))
	}

	s.WriteString(boxStyle.Render(progress.String()))
	s.WriteString("\n\n")

	// Samples
	s.WriteString(labelStyle.Render("Samples:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.samples.View()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := 6
	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(dimStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					dimStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					dimStyle.Render(timestamp),
					infoStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))

	return s.String()
}

// quietForDashboard silences the driver and scheduler logs when the
// dashboard owns the terminal. Failures still reach it as events.
func quietForDashboard() {
	if useTUI {
		log = logger.Nop()
	}
}

// runDashboard runs s behind the dashboard until the user quits
func runDashboard(ctx context.Context, s *scheduler.Scheduler, st *station, sinks samplelog.Multi, check bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialDashboardModel(s, st, cancel)
	p := tea.NewProgram(m, tea.WithAltScreen())

	s.OnEvent(func(ev scheduler.Event) {
		p.Send(eventMsg(ev))
	})
	sinks = append(sinks, scheduler.SinkFunc(func(smp scheduler.Sample) error {
		p.Send(sampleMsg(smp))
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		if check {
			p.Send(statusMsg(s.CheckDevices(ctx)))
		}
		err := runWith(ctx, s, sinks)
		done <- err
		p.Send(runDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("TUI error: %v", err)
	}

	cancel()
	return <-done
}
