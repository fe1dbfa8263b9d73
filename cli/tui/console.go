package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/pipeline"
	"github.com/pithecene-io/sluice/types"
)

const (
	// feedBuffer bounds how far the session can run ahead of the viewer.
	// A full buffer blocks the pipeline, which is the backpressure we want.
	feedBuffer = 128
	// maxFragmentBatch caps how many fragments one render absorbs.
	maxFragmentBatch = 64
)

// Messages for the bubbletea event loop.
type (
	outputMsg      struct{ texts []string }
	streamEndedMsg struct{}
	sessionDoneMsg struct{ result *types.SessionResult }
)

// Feed bridges a running session into the console viewer. The session side
// sees a pipeline sink; the viewer side drains fragments from the event loop.
type Feed struct {
	fragments chan string
	done      chan *types.SessionResult
}

// NewFeed creates a feed ready to wire into a session.
func NewFeed() *Feed {
	return &Feed{
		fragments: make(chan string, feedBuffer),
		done:      make(chan *types.SessionResult, 1),
	}
}

// WriteFragment forwards one fragment to the viewer.
func (f *Feed) WriteFragment(_ context.Context, text string) error {
	f.fragments <- text
	return nil
}

// Close marks the end of the fragment stream. The session may still be
// finalizing after this; Done delivers the result.
func (f *Feed) Close() error {
	close(f.fragments)
	return nil
}

// Done delivers the session result once the runner has returned.
func (f *Feed) Done(result *types.SessionResult) {
	f.done <- result
}

var _ pipeline.Sink = (*Feed)(nil)

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ConsoleModel is a Bubble Tea model that renders a session's fragment
// stream live, then its result summary once the session ends.
type ConsoleModel struct {
	meta   *types.SessionMeta
	feed   *Feed
	cancel context.CancelFunc

	viewport viewport.Model
	spinner  spinner.Model

	content       string
	fragmentCount int
	follow        bool
	width         int
	height        int
	finalizing    bool
	canceling     bool
	done          bool
	result        *types.SessionResult
	quitting      bool
}

// NewConsoleModel creates a console viewer for one session. cancel is
// invoked when the user quits mid-stream; pass nil to make quit immediate.
func NewConsoleModel(meta *types.SessionMeta, feed *Feed, cancel context.CancelFunc) ConsoleModel {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return ConsoleModel{
		meta:     meta,
		feed:     feed,
		cancel:   cancel,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		follow:   true,
	}
}

// Result returns the session result captured by the viewer, if any.
func (m ConsoleModel) Result() *types.SessionResult {
	return m.result
}

// Init implements tea.Model.
func (m ConsoleModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForOutputCmd(m.feed.fragments),
		waitForDoneCmd(m.feed.done),
	)
}

// Update implements tea.Model.
func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case outputMsg:
		for _, text := range msg.texts {
			m.content += text
		}
		m.fragmentCount += len(msg.texts)
		m.viewport.SetContent(m.content)
		if m.follow {
			m.viewport.GotoBottom()
		}
		return m, waitForOutputCmd(m.feed.fragments)

	case streamEndedMsg:
		m.finalizing = true
		return m, nil

	case sessionDoneMsg:
		m.done = true
		m.finalizing = false
		m.result = msg.result
		if m.canceling {
			m.quitting = true
			return m, tea.Quit
		}
		m.layout()
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			switch {
			case m.done, m.canceling, m.cancel == nil:
				m.quitting = true
				return m, tea.Quit
			default:
				m.canceling = true
				m.cancel()
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m ConsoleModel) View() string {
	if m.quitting || m.width == 0 {
		return ""
	}
	return m.headerView() + "\n" + m.viewport.View() + "\n" + m.footerView()
}

func (m ConsoleModel) headerView() string {
	title := TitleStyle.Render(fmt.Sprintf("Session %s", m.meta.ID))
	target := HelpStyle.Render(fmt.Sprintf("%s: %s", m.meta.Kind, m.meta.Target))
	return title + "\n" + target
}

func (m ConsoleModel) footerView() string {
	if m.done {
		return m.summaryView()
	}

	status := fmt.Sprintf("%s streaming (%d fragments)", m.spinner.View(), m.fragmentCount)
	switch {
	case m.canceling:
		status = fmt.Sprintf("%s canceling", m.spinner.View())
	case m.finalizing:
		status = fmt.Sprintf("%s finalizing", m.spinner.View())
	}

	help := HelpStyle.Render("Press q or Ctrl+C to cancel")
	return status + "\n" + help
}

func (m ConsoleModel) summaryView() string {
	r := m.result
	if r == nil {
		return HelpStyle.Render("Press q or Ctrl+C to quit")
	}

	var b strings.Builder

	boxes := []string{
		m.renderStatBox("Outcome", string(r.Outcome), outcomeColor(r.Outcome)),
		m.renderStatBox("Fragments", fmt.Sprintf("%d", r.FragmentCount), highlightColor),
		m.renderStatBox("Bytes", fmt.Sprintf("%d", r.ByteCount), primaryColor),
		m.renderStatBox("Duration", r.Duration.Round(time.Millisecond).String(), mutedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if r.StoragePath != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Transcript:"),
			ValueStyle.Render(r.StoragePath)))
	}
	if r.Err != nil {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Error:"),
			ErrorStyle.Render(r.Err.Error())))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func (m ConsoleModel) renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Render(value)
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// layout sizes the viewport to the space left by the header and footer.
func (m *ConsoleModel) layout() {
	header := lipgloss.Height(m.headerView())
	footer := lipgloss.Height(m.footerView())
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-header-footer-2, 1)
}

// Commands

func waitForOutputCmd(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		text, ok := <-ch
		if !ok {
			return streamEndedMsg{}
		}

		texts := make([]string, 0, 16)
		texts = append(texts, text)
		for len(texts) < maxFragmentBatch {
			select {
			case next, ok := <-ch:
				if !ok {
					return outputMsg{texts: texts}
				}
				texts = append(texts, next)
			default:
				return outputMsg{texts: texts}
			}
		}
		return outputMsg{texts: texts}
	}
}

func waitForDoneCmd(ch <-chan *types.SessionResult) tea.Cmd {
	return func() tea.Msg {
		return sessionDoneMsg{result: <-ch}
	}
}
