package console

import (
	"context"
	"strings"
	"time"

	"webterm/internal/backend"
)

// UnreachableMessage is the transcript output when a command could not be
// delivered to the execution service.
const UnreachableMessage = "Error: unable to reach the terminal server. Check that the execution service is running."

// clearSignal is the output the service returns for a screen reset.
const clearSignal = "CLEAR_TERMINAL"

// Backend is the execution service as seen by a console session.
// *backend.Client implements it.
type Backend interface {
	Health(ctx context.Context) error
	SystemInfo(ctx context.Context) (backend.SystemInfo, error)
	Execute(ctx context.Context, req backend.ExecuteRequest) (backend.ExecuteResponse, error)
}

// outcome is the result of running one command.
type outcome struct {
	entry Entry
	// dir is the working directory the service reported, nil if none.
	dir  *string
	diag *Diagnostic
}

// execute sends command to the service once and turns the reply, or the
// failure to get one, into a transcript entry.
func execute(ctx context.Context, b Backend, timeout time.Duration, command, cwd string) outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := b.Execute(ctx, backend.ExecuteRequest{
		Command:          command,
		CurrentDirectory: cwd,
	})
	if err != nil {
		return outcome{
			entry: newEntry(command, UnreachableMessage, true),
			diag: &Diagnostic{
				Op:      "execute",
				Kind:    backend.Kind(err),
				Message: err.Error(),
				Command: command,
			},
		}
	}

	entry := newEntry(command, resp.Output, resp.Error)
	if !resp.Error && resp.Output == clearSignal {
		entry.Output = ""
		entry.Clear = true
	}

	out := outcome{entry: entry}
	if resp.CurrentDirectory != nil && *resp.CurrentDirectory != "" {
		dir := *resp.CurrentDirectory
		out.dir = &dir
	}
	if resp.Error {
		out.diag = &Diagnostic{
			Op:      "execute",
			Kind:    "command",
			Message: firstLine(resp.Output),
			Command: command,
		}
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
