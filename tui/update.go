package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// maxVisible is the number of list rows shown at once
const maxVisible = 15

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadRuns()
		case "j", "down":
			if m.activeTab == TabRuns {
				if m.selected < len(m.runs)-1 {
					m.selected++
				}
				if m.selected >= m.scroll+maxVisible {
					m.scroll = m.selected - maxVisible + 1
				}
			} else if m.scroll < len(m.results)-1 {
				m.scroll++
			}
		case "k", "up":
			if m.activeTab == TabRuns {
				if m.selected > 0 {
					m.selected--
				}
				if m.selected < m.scroll {
					m.scroll = m.selected
				}
			} else if m.scroll > 0 {
				m.scroll--
			}
		case "tab":
			return m.switchTab((m.activeTab + 1) % tabCount)
		case "enter":
			return m.switchTab(TabResults)
		case "esc":
			return m.switchTab(TabRuns)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.loadRuns(), tickCmd(m.refresh))

	case RunsLoadedMsg:
		m.lastRefresh = m.now()
		m.err = msg.Err
		if msg.Err == nil {
			m.runs = msg.Runs
			if m.selected >= len(m.runs) {
				m.selected = max(len(m.runs)-1, 0)
			}
		}
		return m, nil

	case ResultsLoadedMsg:
		if run := m.selectedRun(); run == nil || run.ID != msg.RunID {
			return m, nil
		}
		m.err = msg.Err
		m.resultsFor = msg.RunID
		m.results = msg.Results
		return m, nil
	}

	return m, nil
}

func (m Model) switchTab(tab Tab) (tea.Model, tea.Cmd) {
	if tab == m.activeTab {
		return m, nil
	}
	m.activeTab = tab
	if tab == TabRuns {
		m.scroll = max(m.selected-maxVisible+1, 0)
		return m, nil
	}
	m.scroll = 0
	run := m.selectedRun()
	if run == nil {
		return m, nil
	}
	if run.ID != m.resultsFor {
		m.results = nil
	}
	return m, m.loadResults(run.ID)
}
