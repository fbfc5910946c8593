package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelsos/ledger-sync/internal/models"
)

type ChainStatus struct {
	Name     string
	Status   models.Status
	Accounts int
	Error    string
	Updated  time.Time
}

type Model struct {
	chains       []string
	chainStatus  map[string]*ChainStatus
	phase        models.SyncPhase
	percentage   int
	logs         []string
	spinner      spinner.Model
	progress     progress.Model
	width        int
	height       int
	quit         bool
	finished     bool
	onQuit       func()
	logPath      string
	errorCount   int
	successCount int
}

type ChainsLoaded struct {
	Chains []models.ChainConfig
}

type ChainUpdate struct {
	Snapshot models.ChainSnapshot
	// NewAccounts is only set by deep scans
	NewAccounts int
}

type ProgressUpdate struct {
	Progress models.SyncProgress
}

type PhaseTwoStarted struct{}

type LogMessage struct {
	Message string
}

type Finished struct {
	Summary string
}

// NewModel creates the monitor model; onQuit runs when the user asks to stop
func NewModel(onQuit func(), logPath string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		chains:      []string{},
		chainStatus: make(map[string]*ChainStatus),
		phase:       models.PhaseFetchingAddresses,
		logs:        []string{},
		spinner:     sp,
		progress:    pr,
		width:       80,
		height:      24,
		onQuit:      onQuit,
		logPath:     logPath,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			if m.onQuit != nil {
				m.onQuit()
			}
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case ChainsLoaded:
		m = m.handleChainsLoaded(msg)

	case ChainUpdate:
		m = m.handleChainUpdate(msg)

	case ProgressUpdate:
		m.phase = msg.Progress.Phase
		if msg.Progress.Percentage > m.percentage {
			m.percentage = msg.Progress.Percentage
		}

	case PhaseTwoStarted:
		m.phase = models.PhaseProcessingAccounts
		m = m.handleLogMessage(LogMessage{Message: "Processing accounts"})

	case LogMessage:
		m = m.handleLogMessage(msg)

	case Finished:
		m.finished = true
		m = m.handleLogMessage(LogMessage{Message: msg.Summary})
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 40
	return m
}

func (m Model) handleChainsLoaded(msg ChainsLoaded) Model {
	for _, chain := range msg.Chains {
		if _, exists := m.chainStatus[chain.ID]; exists {
			continue
		}
		m.chains = append(m.chains, chain.ID)
		m.chainStatus[chain.ID] = &ChainStatus{Name: chain.Name}
	}
	return m
}

func (m Model) handleChainUpdate(msg ChainUpdate) Model {
	snapshot := msg.Snapshot
	status, exists := m.chainStatus[snapshot.ID]
	if !exists {
		status = &ChainStatus{Name: snapshot.Name}
		m.chainStatus[snapshot.ID] = status
		m.chains = append(m.chains, snapshot.ID)
	}

	previous := status.Status
	status.Status = snapshot.State.Status()
	status.Accounts = snapshot.AccountCount()
	status.Updated = time.Now()
	status.Error = ""
	if chainErr := snapshot.State.Err(); chainErr != nil {
		status.Error = chainErr.Description
	}

	if previous != status.Status {
		switch status.Status {
		case models.StatusSynchronized:
			m.successCount++
			line := fmt.Sprintf("✅ %s synchronized, %d accounts", snapshot.Name, status.Accounts)
			if msg.NewAccounts > 0 {
				line = fmt.Sprintf("✅ %s: %d new accounts", snapshot.Name, msg.NewAccounts)
			}
			m = m.handleLogMessage(LogMessage{Message: line})
		case models.StatusError:
			m.errorCount++
			m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ %s: %s", snapshot.Name, status.Error)})
		}
	}
	return m
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), msg.Message))
	if len(m.logs) > 10 {
		m.logs = m.logs[len(m.logs)-10:]
	}
	return m
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("🔐 Ledger Account Sync"))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	summary := fmt.Sprintf("Chains: %d | ✅ Synchronized: %d | ❌ Errors: %d | Phase: %s",
		len(m.chains), m.successCount, m.errorCount, m.phase)
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n")
	s.WriteString(m.progress.ViewAs(float64(m.percentage) / 100))
	s.WriteString("\n\n")

	chainSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var chainStatus strings.Builder
	chainStatus.WriteString("⛓️ Chains\n")
	chainStatus.WriteString(strings.Repeat("─", 60) + "\n")

	for _, id := range m.chains {
		status, exists := m.chainStatus[id]
		if !exists {
			continue
		}

		indicator := getStatusIcon(status.Status)
		if !m.finished && (status.Status == models.StatusLoading || status.Status == models.StatusAddressesFetched) {
			indicator = m.spinner.View()
		}

		line := fmt.Sprintf("%s %-20s %-18s %3d accounts",
			indicator,
			truncate(status.Name, 20),
			status.Status,
			status.Accounts)

		if status.Error != "" {
			errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
			line += " " + errorStyle.Render(truncate(status.Error, 60))
		}

		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(getStatusColor(status.Status)))
		chainStatus.WriteString(statusStyle.Render(line) + "\n")
	}

	s.WriteString(chainSectionStyle.Render(chainStatus.String()))
	s.WriteString("\n\n")

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'q' to cancel"
	if m.logPath != "" {
		footer += " | Logs: " + m.logPath
	}
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

func getStatusIcon(status models.Status) string {
	switch status {
	case models.StatusLoading:
		return "⏳"
	case models.StatusAddressesFetched:
		return "📥"
	case models.StatusSynchronized:
		return "✅"
	case models.StatusError:
		return "❌"
	case models.StatusNoNeedMigration:
		return "⏭"
	default:
		return "⏸"
	}
}

func getStatusColor(status models.Status) string {
	switch status {
	case models.StatusSynchronized:
		return "82"
	case models.StatusError:
		return "196"
	case models.StatusNoNeedMigration, "":
		return "244"
	default:
		return "39"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
