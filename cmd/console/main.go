package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"

	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/console"
)

func main() {
	if !term.IsTerminal(os.Stdout.Fd()) {
		fmt.Println("relay console requires an interactive terminal")
		os.Exit(1)
	}

	flags := config.ParseConsoleFlags()

	app := console.NewApp(flags)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())

	if _, err := p.Run(); err != nil {
		fmt.Printf("error running relay console: %v\n", err)
		os.Exit(1)
	}
}
