package menu

import (
	"fmt"

	"github.com/chzyer/readline"
)

// ReadlinePrompter reads answers from the terminal with line editing and
// history.
type ReadlinePrompter struct {
	rl *readline.Instance
}

// NewReadlinePrompter opens the terminal. historyFile may be empty.
func NewReadlinePrompter(historyFile string) (*ReadlinePrompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize menu: %w", err)
	}
	return &ReadlinePrompter{rl: rl}, nil
}

// Prompt shows label and reads one line.
func (p *ReadlinePrompter) Prompt(label string) (string, error) {
	p.rl.SetPrompt(label)
	return p.rl.Readline()
}

// Close restores the terminal.
func (p *ReadlinePrompter) Close() error {
	return p.rl.Close()
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("month"),
		readline.PcItem("quarter"),
		readline.PcItem("year"),
		readline.PcItem("custom"),
		readline.PcItem("percentage"),
		readline.PcItem("value"),
	)
}
