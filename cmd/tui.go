// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/xgtmon/pkg/channel"
	"github.com/Thermoquad/xgtmon/pkg/scheduler"
	"github.com/Thermoquad/xgtmon/pkg/sink"
	"github.com/Thermoquad/xgtmon/pkg/telemetry"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Published channel value
type channelValue struct {
	entry     channel.Entry
	value     float64
	updatedAt time.Time
}

// TUI model
type model struct {
	connInfo string
	interval time.Duration
	sched    *scheduler.Scheduler
	entries  []channel.Entry

	reading    telemetry.Reading
	hasReading bool
	counters   xgt.Counters
	values     map[string]channelValue

	charge progress.Model
	health progress.Model

	eventLog      []eventLogEntry
	maxLogEntries int
	lastRejected  uint64
	width         int
	height        int
	quitting      bool
	err           error
}

// Messages
type tickMsg time.Time
type publishMsg channelValue
type runDoneMsg struct {
	err error
}

func initialModel(sched *scheduler.Scheduler, entries []channel.Entry, connInfo string) model {
	return model{
		connInfo:      connInfo,
		interval:      sched.UpdateInterval(),
		sched:         sched,
		entries:       entries,
		values:        make(map[string]channelValue, len(entries)),
		charge:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		health:        progress.New(progress.WithGradient("#FF5F5F", "#5FFF87"), progress.WithWidth(30)),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

// runMonitorTUI runs the scheduler behind a live dashboard
func runMonitorTUI(ctx context.Context, src scheduler.Source, registry *channel.Registry, opts scheduler.Options, connInfo string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	out := sink.Func(func(entry channel.Entry, value float64) error {
		p.Send(publishMsg{entry: entry, value: value, updatedAt: time.Now()})
		return nil
	})

	sched, err := scheduler.New(src, registry, out, opts)
	if err != nil {
		return err
	}
	sched.DumpConfig()

	p = tea.NewProgram(initialModel(sched, registry.Entries(), connInfo), tea.WithContext(ctx))

	go func() {
		err := sched.Run(ctx)
		p.Send(runDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	if m, ok := final.(model); ok && m.err != nil {
		return m.err
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case publishMsg:
		m.values[msg.entry.ID] = channelValue(msg)

	case runDoneMsg:
		m.err = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("STOPPED: %v", msg.err), true)
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the installed reading and statistics from the scheduler
func (m *model) refresh() {
	if r, ok := m.sched.Model().Current(); ok {
		if !m.hasReading || r.Sequence != m.reading.Sequence {
			m.addLogEntry(fmt.Sprintf("Frame #%d: %s", r.Sequence, r.Snapshot.Summary()), false)
		}
		m.reading = r
		m.hasReading = true
	}

	m.counters = m.sched.Statistics().Snapshot()
	if rejected := m.counters.Rejected(); rejected > m.lastRejected {
		m.addLogEntry(fmt.Sprintf("%d frame(s) rejected (checksum %d, range %d, malformed %d)",
			rejected-m.lastRejected, m.counters.ChecksumErrors, m.counters.RangeErrors, m.counters.Malformed), true)
		m.lastRejected = rejected
	}
}

func (m *model) addLogEntry(message string, isError bool) {
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

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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
	var s strings.Builder
	s.WriteString(titleStyle.Render("XGTMON - BATTERY MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Update: %s | Press 'q' to quit", m.connInfo, m.interval)))
	s.WriteString("\n\n")

	// Pack
	if !m.hasReading {
		s.WriteString(warningStyle.Render("⏳ Waiting for first valid frame..."))
		s.WriteString("\n\n")
	} else {
		snap := m.reading.Snapshot
		agg := m.reading.Aggregates

		packContent := strings.Builder{}
		packContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Pack:"), statsValueStyle.Render(fmt.Sprintf("%.2f V", snap.PackVoltage())),
			statsLabelStyle.Render("Temp:"), statsValueStyle.Render(fmt.Sprintf("%.1f°C", snap.Temperature())),
			statsLabelStyle.Render("Cycles:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.CycleCount)),
		))
		packContent.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Charge:"), m.charge.ViewAs(float64(snap.ChargePercent)/100)))
		packContent.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Health:"), m.health.ViewAs(float64(snap.HealthPercent)/100)))
		packContent.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Cells:"), headerStyle.Render(fmt.Sprintf("%d x %d mAh, %dP", snap.PresentCells(), snap.CellSizeMAh, snap.ParallelCount)),
		))

		if agg.Valid {
			packContent.WriteString("\n")
			for i, c := range snap.Cells {
				if !c.Present {
					continue
				}
				style := statsValueStyle
				if c.Millivolts == agg.MinMillivolts || c.Millivolts == agg.MaxMillivolts {
					style = warningStyle
				}
				packContent.WriteString(fmt.Sprintf("%s %s ",
					headerStyle.Render(fmt.Sprintf("%d:", i+1)), style.Render(fmt.Sprintf("%.3f", c.Volts())),
				))
			}
			packContent.WriteString(fmt.Sprintf("\n%s %s",
				statsLabelStyle.Render("Divergence:"), statsValueStyle.Render(fmt.Sprintf("%.3f V", agg.DivergenceVolts())),
			))
		}

		s.WriteString(boxStyle.Render(packContent.String()))
		s.WriteString("\n\n")
	}

	// Published channels
	s.WriteString(statsLabelStyle.Render("Published Channels:"))
	s.WriteString("\n")
	chContent := strings.Builder{}
	if len(m.entries) == 0 {
		chContent.WriteString(headerStyle.Render("(no channels enabled)"))
	}
	for i, e := range m.entries {
		value := headerStyle.Render("-")
		if v, ok := m.values[e.ID]; ok {
			value = statsValueStyle.Render(e.FormatValue(v.value))
		}
		chContent.WriteString(fmt.Sprintf("%-24s %s", e.Name, value))
		if i < len(m.entries)-1 {
			chContent.WriteString("\n")
		}
	}
	s.WriteString(boxStyle.Render(chContent.String()))
	s.WriteString("\n\n")

	// Statistics
	c := m.counters
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Candidates:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Candidates)),
		statsLabelStyle.Render("Decoded:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Decoded)),
		statsLabelStyle.Render("Rejected:"), func() string {
			if c.Rejected() > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", c.Rejected()))
			}
			return statsValueStyle.Render("0")
		}(),
	))
	statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d",
		statsLabelStyle.Render("Skipped bytes:"), c.GarbageBytes,
		statsLabelStyle.Render("Dropped bytes:"), c.DroppedBytes,
		statsLabelStyle.Render("Superseded:"), c.Superseded,
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 30
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
