// Package cli runs line oriented command shells.
package cli

import (
	"bufio"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

// MainLoop runs prompt on terminal stdin, otherwise executes stdin lines.
// onSignal receives SIGHUP, SIGINT, SIGTERM and SIGQUIT, nil ignores them.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest, onSignal func(os.Signal)) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer signal.Stop(signalCh)
	go func() {
		for s := range signalCh {
			if onSignal != nil {
				onSignal(s)
			}
		}
	}()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete,
			prompt.OptionTitle(tag),
			prompt.OptionPrefix(tag+"> "),
		).Run()
		return nil
	}
	return ExecLines(os.Stdin, exec)
}

// ExecLines calls exec for each trimmed non-empty line of r.
func ExecLines(r io.Reader, exec func(line string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		exec(line)
	}
	return errors.Annotate(scanner.Err(), "cli read")
}

// Complete suggests first word from suggests, fuzzy matched.
func Complete(suggests []prompt.Suggest) func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}
