// Package ui renders dispatcher activity as a terminal progress view.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/moyoez/productshot/types"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

const (
	defaultBarWidth = 30
	nameWidth       = 28
)

// ProgressMsg reports the upload percentage of a task.
type ProgressMsg struct {
	TaskID  string
	Percent int
}

// TaskMsg announces a task the view did not know about, such as a retry.
type TaskMsg types.UploadTask

// ResultMsg delivers a terminal result.
type ResultMsg types.UploadResult

// DoneMsg signals the end of the drain cycle; the program quits on it.
type DoneMsg struct {
	Results []types.UploadResult
}

type row struct {
	task    types.UploadTask
	percent int
	done    bool
	err     string
	imageID int64
}

// Model is the bubbletea model of one upload run.
type Model struct {
	title string
	order []string
	rows  map[string]*row
	bar   progress.Model
	done  bool
	quit  bool
}

// New creates a view for tasks in queue order.
func New(title string, tasks []types.UploadTask) Model {
	m := Model{
		title: title,
		rows:  make(map[string]*row, len(tasks)),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth)),
	}
	for _, t := range tasks {
		m.add(t)
	}
	return m
}

func (m *Model) add(t types.UploadTask) *row {
	if r, ok := m.rows[t.ID]; ok {
		return r
	}
	r := &row{task: t}
	m.rows[t.ID] = r
	m.order = append(m.order, t.ID)
	return r
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := msg.Width - nameWidth - 24
		if width > defaultBarWidth*2 {
			width = defaultBarWidth * 2
		}
		if width > 10 {
			m.bar.Width = width
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quit = true
			return m, tea.Quit
		}
	case TaskMsg:
		m.add(types.UploadTask(msg))
	case ProgressMsg:
		if r, ok := m.rows[msg.TaskID]; ok && !r.done {
			r.percent = msg.Percent
		}
	case ResultMsg:
		r := m.add(msg.Task)
		r.done = true
		if msg.Success {
			r.percent = 100
			r.imageID = msg.ImageID
			r.err = ""
		} else {
			r.err = msg.Error
		}
	case DoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// Counts returns the succeeded and failed rows.
func (m Model) Counts() (ok, failed int) {
	for _, r := range m.rows {
		if !r.done {
			continue
		}
		if r.err == "" {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Interrupted reports whether the user quit before the cycle drained.
func (m Model) Interrupted() bool {
	return m.quit && !m.done
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for _, id := range m.order {
		r := m.rows[id]
		name := fmt.Sprintf("%-*s", nameWidth, truncate(r.task.File.FileName, nameWidth))
		var status string
		switch {
		case r.done && r.err != "":
			status = errorStyle.Render("✗ " + r.err)
		case r.done:
			status = okStyle.Render(fmt.Sprintf("✓ image %d", r.imageID))
		default:
			status = mutedStyle.Render(fmt.Sprintf("%3d%%", r.percent))
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", name, mutedStyle.Render(fmt.Sprintf("%-12s", r.task.SectionID)), m.bar.ViewAs(float64(r.percent)/100), status)
	}
	ok, failed := m.Counts()
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d/%d uploaded, %d failed", ok, len(m.order), failed)))
	if !m.done {
		b.WriteString(mutedStyle.Render("  (q to detach)"))
	}
	b.WriteString("\n")
	return b.String()
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Callbacks adapts dispatcher callbacks into messages for p.
func Callbacks(p Sender) (onProgress func(types.UploadTask, int), onResult func(types.UploadResult), onComplete func([]types.UploadResult)) {
	onProgress = func(t types.UploadTask, percent int) {
		p.Send(ProgressMsg{TaskID: t.ID, Percent: percent})
	}
	onResult = func(r types.UploadResult) {
		p.Send(ResultMsg(r))
	}
	onComplete = func(results []types.UploadResult) {
		p.Send(DoneMsg{Results: results})
	}
	return onProgress, onResult, onComplete
}
