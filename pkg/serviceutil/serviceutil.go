package serviceutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
)

// Returns a context that will live until Ctrl+C is pressed
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	return ctx
}

var (
	promptMutex sync.Mutex
	pausePrompt = "Press Enter to exit..."
)

// SetPausePrompt changes the message Pause prints.
func SetPausePrompt(prompt string) {
	promptMutex.Lock()
	defer promptMutex.Unlock()
	pausePrompt = prompt
}

// Interactive returns true if stdin is a terminal someone can press Enter in.
func Interactive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func waitForEnter(in io.Reader, out io.Writer) {
	promptMutex.Lock()
	prompt := pausePrompt
	promptMutex.Unlock()

	fmt.Fprint(out, prompt)
	_, _ = bufio.NewReader(in).ReadString('\n')
}

// Pause waits for Enter so a double clicked console window does not close
// before its output is read. It does nothing outside of a terminal.
func Pause() {
	if !Interactive() {
		return
	}
	waitForEnter(os.Stdin, os.Stderr)
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err)
	Pause()
	os.Exit(1)
}
