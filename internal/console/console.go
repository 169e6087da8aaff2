package console

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"codeberg.org/modelrelay/relay/internal/config"
)

func NewApp(flags config.Flags) *Model {
	client := NewClient(flags.Endpoint)

	return &Model{
		state:   StateWelcome,
		welcome: NewWelcome(client),
		prompt:  NewPromptModel(client, flags.Category),
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// only quit from the welcome screen
		if msg.String() == "ctrl+c" && m.state == StateWelcome {
			return m, tea.Quit
		}

		// in the prompt screen, ctrl+c goes back to welcome
		if msg.String() == "ctrl+c" && m.state == StatePrompt {
			m.state = StateWelcome
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if m.state == StatePrompt {
			m.prompt, _ = m.prompt.Update(msg)
		}

	case ErrorMsg:
		m.err = msg.err
		return m, nil

	case EnterPromptMsg:
		m.state = StatePrompt
		return m, m.prompt.Init()

	case BackendsMsg:
		m.welcome.notice = msg.listing
		return m, nil

	case RequestErrorMsg:
		if m.state == StateWelcome {
			m.welcome.notice = errorStyle.Render(fmt.Sprintf("error: %v", msg.err))
			return m, nil
		}
	}

	switch m.state {
	case StateWelcome:
		return m.updateWelcome(msg)

	case StatePrompt:
		return m.updatePrompt(msg)

	default:
		return m, nil
	}
}

func (m *Model) View() string {
	if m.err != nil {
		return errorView(m.err)
	}

	switch m.state {
	case StateWelcome:
		return m.welcome.View()

	case StatePrompt:
		return m.prompt.View()

	default:
		return "Unknown state"
	}
}

func (m *Model) updateWelcome(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.welcome, cmd = m.welcome.Update(msg)

	return m, cmd
}

func (m *Model) updatePrompt(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)

	return m, cmd
}

func errorView(err error) string {
	return fmt.Sprintf("\n  Error: %v\n\n  Press Ctrl+C to exit\n", err)
}

// returns a new welcome screen
func NewWelcome(client *Client) *Welcome {
	commands := []Command{
		{Name: "prompt", Description: "interactive model prompt"},
		{Name: "backends", Description: "list backends and circuit states"},
		{Name: "quit", Description: "exit relay console"},
	}

	return &Welcome{
		commands: commands,
		client:   client,
	}
}

func (m *Welcome) Update(msg tea.Msg) (*Welcome, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			return m, m.executeCommand()
		case "backspace":
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		default:
			if len(msg.String()) == 1 {
				m.input += msg.String()
			}
		}
	}

	return m, nil
}

func (m *Welcome) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(logo))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("model request orchestration console"))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Render("commands:"))
	b.WriteString("\n\n")

	for _, cmd := range m.commands {
		line := fmt.Sprintf("  %s %s",
			commandStyle.Render(cmd.Name),
			commandDescStyle.Render("- "+cmd.Description),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(m.notice)
		b.WriteString("\n\n")
	}

	prompt := promptStyle.Render("> ")
	input := inputStyle.Render(m.input + "_")
	b.WriteString(prompt + input)
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render("type a command and press enter. press ctrl+c to quit."))

	return b.String()
}

func (m *Welcome) executeCommand() tea.Cmd {
	cmd := strings.TrimSpace(m.input)
	m.input = ""

	switch cmd {
	case "quit":
		return tea.Quit

	case "prompt":
		return func() tea.Msg {
			return EnterPromptMsg{}
		}

	case "backends":
		return m.client.BackendsCmd()

	default:
		if cmd != "" {
			m.notice = errorStyle.Render(fmt.Sprintf("unknown command: %s", cmd))
		}

		return nil
	}
}
