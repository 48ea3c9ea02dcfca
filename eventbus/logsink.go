// ABOUTME: LogSink renders an execution's event stream as a human-readable Markdown
// ABOUTME: transcript, with goldmark rendering the HTML view for the log stream.
package eventbus

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// LogSink accumulates EXECUTION_LOG-worthy events into a Markdown
// transcript for one execution, and can render it to HTML on demand for
// a log-stream viewer.
type LogSink struct {
	title string
	lines []string
}

// NewLogSink starts a transcript titled with execID.
func NewLogSink(execID string) *LogSink {
	return &LogSink{title: execID}
}

// Record appends one event to the transcript. Only event kinds a human
// would want in a run log are rendered; others are ignored.
func (s *LogSink) Record(ev Event) {
	switch ev.Type {
	case EventExecutionStarted:
		s.lines = append(s.lines, "Execution started.")
	case EventNodeStarted:
		s.lines = append(s.lines, fmt.Sprintf("- **%s** started", ev.NodeID))
	case EventNodeCompleted:
		s.lines = append(s.lines, fmt.Sprintf("- **%s** completed", ev.NodeID))
	case EventNodeError:
		s.lines = append(s.lines, fmt.Sprintf("- **%s** error: %v", ev.NodeID, ev.Payload))
	case EventExecutionLog:
		s.lines = append(s.lines, fmt.Sprintf("%v", ev.Payload))
	case EventExecutionCompleted:
		s.lines = append(s.lines, "Execution completed.")
	case EventExecutionAborted:
		s.lines = append(s.lines, "Execution aborted.")
	case EventExecutionError:
		s.lines = append(s.lines, fmt.Sprintf("Execution failed: %v", ev.Payload))
	}
}

// Markdown renders the transcript collected so far as a Markdown document.
func (s *LogSink) Markdown() string {
	var out strings.Builder
	fmt.Fprintf(&out, "# Execution %s\n\n", s.title)
	for _, line := range s.lines {
		fmt.Fprintln(&out, line)
	}
	return out.String()
}

// HTML renders the transcript to HTML via goldmark, for a log-stream
// viewer that wants rendered markup rather than raw Markdown.
func (s *LogSink) HTML() (string, error) {
	var buf strings.Builder
	if err := goldmark.Convert([]byte(s.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("logsink: render html: %w", err)
	}
	return buf.String(), nil
}
