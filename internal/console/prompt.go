package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"codeberg.org/modelrelay/relay/internal/core"
)

// returns a new interactive prompt screen
func NewPromptModel(client *Client, category string) *PromptModel {
	ti := textinput.New()
	ti.Placeholder = "describe what you need..."
	ti.Focus()
	ti.CharLimit = 0
	ti.Width = 80
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorLightGray)
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorWhite)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorLightGray)

	m := &PromptModel{
		input:   ti,
		spinner: sp,
		client:  client,
	}

	for i, cat := range core.TaskCategories() {
		if string(cat) == category {
			m.category = i
			break
		}
	}

	return m
}

func (m *PromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *PromptModel) Update(msg tea.Msg) (*PromptModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			prompt := strings.TrimSpace(m.input.Value())
			if prompt == "" || m.fetching {
				return m, nil
			}

			m.fetching = true
			m.input.SetValue("")

			req := DispatchRequest{
				Prompt:       prompt,
				TaskCategory: string(m.currentCategory()),
			}

			return m, tea.Batch(m.spinner.Tick, m.client.DispatchCmd(req))

		case "ctrl+t":
			m.category = (m.category + 1) % len(core.TaskCategories())
			return m, nil

		case "ctrl+l":
			m.input.SetValue("")
			m.content = ""
			m.meta = ""
			m.backend = ""
			m.fetching = false

			if m.ready {
				m.viewport.SetContent("")
			}

			return m, nil
		}

	case ResponseMsg:
		m.fetching = false
		m.content = msg.resp.Content
		m.backend = msg.resp.BackendUsed
		m.meta = formatMeta(msg.resp)
		m.setViewportContent()
		m.input.Focus()

		return m, nil

	case RequestErrorMsg:
		m.fetching = false
		m.content = ""
		m.meta = ""

		if m.ready {
			m.viewport.SetContent(errorStyle.Render(fmt.Sprintf("error: %v", msg.err)))
		}

		m.input.Focus()

		return m, nil

	case spinner.TickMsg:
		if m.fetching {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 10

		viewportHeight := max(msg.Height-12, 3)

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = viewportHeight
		}

		// rebuild the renderer at the new wrap width
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(msg.Width-8, 20)),
		)
		if err == nil {
			m.renderer = renderer
		}

		m.setViewportContent()
	}

	m.input, cmd = m.input.Update(msg)

	if m.ready {
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmd = tea.Batch(cmd, vpCmd)
	}

	return m, cmd
}

func (m *PromptModel) View() string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorWhite).
		Render("RELAY CONSOLE")

	help := helpStyle.
		Render("[Enter: Send] [Ctrl+T: Category] [Ctrl+L: Clear] [Ctrl+C: Back]")

	headerLine := lipgloss.JoinHorizontal(lipgloss.Left,
		header,
		strings.Repeat(" ", max(0, m.width-lipgloss.Width(header)-lipgloss.Width(help)-2)),
		help,
	)

	b.WriteString(headerLine)
	b.WriteString("\n\n")

	if m.ready {
		b.WriteString(boxStyle.Width(m.width - 4).Render(m.viewport.View()))
	}

	b.WriteString("\n")

	if m.meta != "" {
		b.WriteString(infoStyle.Render(m.meta))
		b.WriteString("\n")
	}

	b.WriteString("\n")

	inputBox := boxStyle.
		Width(m.width - 4).
		Padding(0, 1).
		Render(m.input.View())

	b.WriteString(inputBox)
	b.WriteString("\n")

	category := categoryStyle.Render(fmt.Sprintf("category: %s", m.currentCategory()))
	b.WriteString(category)

	if m.fetching {
		b.WriteString("  ")
		b.WriteString(m.spinner.View())
		b.WriteString(infoStyle.Render("dispatching..."))
	}

	return b.String()
}

func (m *PromptModel) currentCategory() core.TaskCategory {
	categories := core.TaskCategories()
	return categories[m.category%len(categories)]
}

// renders the stored response through glamour into the viewport
func (m *PromptModel) setViewportContent() {
	if !m.ready || m.content == "" {
		return
	}

	rendered := m.content

	if m.renderer != nil {
		if out, err := m.renderer.Render(m.content); err == nil {
			rendered = out
		}
	}

	m.viewport.SetContent(rendered)
	m.viewport.GotoTop()
}

// builds the status line shown under the response
func formatMeta(resp *DispatchResponse) string {
	meta := fmt.Sprintf("backend: %s | tokens: %d in / %d out | %.2fs",
		resp.BackendUsed,
		resp.TokensUsed.Input,
		resp.TokensUsed.Output,
		resp.ProcessingTimeSeconds,
	)

	if resp.Cached {
		meta += " | " + cachedStyle.Render("cached")
	}

	return meta
}

func max(a, b int) int {
	if a > b {
		return a
	}

	return b
}
