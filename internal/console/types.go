package console

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
)

// represents the current state of the console
type AppState int

const (
	StateWelcome AppState = iota
	StatePrompt
)

// main console application model
type Model struct {
	state   AppState
	width   int
	height  int
	err     error
	welcome *Welcome
	prompt  *PromptModel
}

// welcome screen model
type Welcome struct {
	input    string
	commands []Command
	notice   string
	client   *Client
}

// represents an available console command
type Command struct {
	Name        string
	Description string
}

// interactive prompt screen
type PromptModel struct {
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	client *Client

	width  int
	height int
	ready  bool

	fetching bool
	category int
	backend  string
	meta     string
	content  string
}

// sent when an unrecoverable error occurs
type ErrorMsg struct {
	err error
}

// sent to transition to the prompt state
type EnterPromptMsg struct{}

// sent when a dispatch completes
type ResponseMsg struct {
	prompt string
	resp   *DispatchResponse
}

// sent when a dispatch fails
type RequestErrorMsg struct {
	prompt string
	err    error
}

// sent when the backend listing completes
type BackendsMsg struct {
	listing string
}

// timeout for console dispatches; generous enough for a full fallback chain
const dispatchTimeout = 150 * time.Second
