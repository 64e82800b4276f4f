// Package tui provides interactive terminal UI components.
package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mkoskinen/librarian/internal/catalog"
)

const (
	defaultListWidth  = 72
	defaultListHeight = 20
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m).Run()
}

// Decision is the reviewer's verdict on one pending approval.
type Decision struct {
	ApprovalID int64
	State      catalog.ApprovalState
}

type approvalItem struct {
	catalog.Approval
}

func (i approvalItem) Title() string       { return i.Approval.Title }
func (i approvalItem) FilterValue() string { return i.Approval.Title }
func (i approvalItem) Description() string { return i.ProposedCoverURL }

type itemStyles struct {
	normal     lipgloss.Style
	selected   lipgloss.Style
	title      lipgloss.Style
	confidence lipgloss.Style
	metadata   lipgloss.Style
}

func newItemStyles() itemStyles {
	asciiBorder := lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	container := lipgloss.NewStyle().
		Border(asciiBorder).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Foreground(lipgloss.Color("252"))

	selected := container.Copy().
		BorderForeground(lipgloss.Color("214")).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("237"))

	return itemStyles{
		normal:   container,
		selected: selected,
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("254")),
		confidence: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")),
		metadata: lipgloss.NewStyle().
			Foreground(lipgloss.Color("247")).
			Faint(true),
	}
}

type approvalDelegate struct {
	styles itemStyles
}

func newDelegate() approvalDelegate {
	return approvalDelegate{styles: newItemStyles()}
}

func (d approvalDelegate) Height() int                         { return 6 }
func (d approvalDelegate) Spacing() int                        { return 1 }
func (d approvalDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d approvalDelegate) Render(w io.Writer, m list.Model, idx int, item list.Item) {
	a, ok := item.(approvalItem)
	if !ok {
		return
	}

	titleLine := d.styles.title.Render(a.Approval.Title)
	confidenceLine := d.styles.confidence.Render(
		fmt.Sprintf("%s, author match %d/100", a.Provider, a.Confidence))
	currentLine := d.styles.metadata.Render("current:  " + orNone(a.CurrentCoverURL))
	proposedLine := d.styles.metadata.Render("proposed: " + a.ProposedCoverURL)

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, confidenceLine, currentLine, proposedLine)

	container := d.styles.normal
	if idx == m.Index() {
		container = d.styles.selected
	}
	_, _ = fmt.Fprint(w, container.Render(content))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

type model struct {
	list      list.Model
	decisions map[int64]catalog.ApprovalState
}

func newModel(approvals []catalog.Approval) *model {
	items := make([]list.Item, len(approvals))
	for i, a := range approvals {
		items[i] = approvalItem{a}
	}

	l := list.New(items, newDelegate(), defaultListWidth, defaultListHeight)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.DisableQuitKeybindings()
	l.Styles.NoItems = lipgloss.NewStyle()

	return &model{
		list:      l,
		decisions: make(map[int64]catalog.ApprovalState),
	}
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "a", "enter":
			return m.decide(catalog.ApprovalApproved)
		case "r":
			return m.decide(catalog.ApprovalRejected)
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		width := clamp(defaultListWidth, msg.Width-4, 40)
		height := clamp(defaultListHeight, msg.Height-6, 5)
		m.list.SetSize(width, height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// decide records the verdict for the selected item and removes it from
// the list; the review ends when nothing is left.
func (m *model) decide(state catalog.ApprovalState) (tea.Model, tea.Cmd) {
	selected, ok := m.list.SelectedItem().(approvalItem)
	if !ok {
		return m, tea.Quit
	}
	m.decisions[selected.ID] = state
	m.list.RemoveItem(m.list.Index())
	if len(m.list.Items()) == 0 {
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) View() string {
	header := headerStyle.Render(
		fmt.Sprintf("Pending cover replacements: %d", len(m.list.Items())))
	help := helpStyle.Render("Up/Down navigate | a approve | r reject | q done")
	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), help)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			MarginTop(1).
			Foreground(lipgloss.Color("244"))
)

func clamp(preferred, max, min int) int {
	if max < min {
		return min
	}
	if preferred > max {
		return max
	}
	if preferred < min {
		return min
	}
	return preferred
}

// ReviewApprovals runs the interactive review over pending approvals and
// returns the decisions made. Items left undecided stay pending.
func ReviewApprovals(approvals []catalog.Approval) ([]Decision, error) {
	if len(approvals) == 0 {
		return nil, nil
	}

	final, err := runProgram(newModel(approvals))
	if err != nil {
		return nil, fmt.Errorf("running review UI: %w", err)
	}

	m, ok := final.(*model)
	if !ok {
		return nil, fmt.Errorf("unexpected model type from review UI")
	}

	decisions := make([]Decision, 0, len(m.decisions))
	// Preserve the original review order.
	for _, a := range approvals {
		if state, ok := m.decisions[a.ID]; ok {
			decisions = append(decisions, Decision{ApprovalID: a.ID, State: state})
		}
	}
	return decisions, nil
}
