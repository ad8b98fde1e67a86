package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/canonical/charm-analysis/internal/execshell"
)

const consoleLineTemplateConstant = "%s\n"

// ConsoleCommandObserver prints command lifecycle events as human-readable console lines.
type ConsoleCommandObserver struct {
	writer    io.Writer
	formatter execshell.CommandMessageFormatter
	mutex     sync.Mutex
}

// NewConsoleCommandObserver constructs an observer writing to the provided writer.
func NewConsoleCommandObserver(writer io.Writer) *ConsoleCommandObserver {
	return &ConsoleCommandObserver{writer: writer}
}

// CommandStarted prints the start-of-command message.
func (observer *ConsoleCommandObserver) CommandStarted(command execshell.ShellCommand) {
	observer.printLine(observer.formatter.BuildStartedMessage(command))
}

// CommandCompleted prints either the success or failure message depending on the exit code.
func (observer *ConsoleCommandObserver) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if result.ExitCode == 0 {
		observer.printLine(observer.formatter.BuildSuccessMessage(command))
		return
	}
	observer.printLine(observer.formatter.BuildFailureMessage(command, result))
}

// CommandExecutionFailed prints the unexpected-failure message.
func (observer *ConsoleCommandObserver) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	observer.printLine(observer.formatter.BuildExecutionFailureMessage(command, failure))
}

func (observer *ConsoleCommandObserver) printLine(message string) {
	if observer == nil || observer.writer == nil {
		return
	}
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	fmt.Fprintf(observer.writer, consoleLineTemplateConstant, message)
}
