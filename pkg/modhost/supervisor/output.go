/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package supervisor

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// Severity is the level a worker attached to an output line.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
	SeverityDebug
	SeverityTrace
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityDebug:
		return "debug"
	case SeverityTrace:
		return "trace"
	default:
		return "unknown"
	}
}

type stream string

const (
	streamStdout stream = "stdout"
	streamStderr stream = "stderr"
)

// Long forms come first so "error:" is not read as "err:" followed by "or:".
var severityPrefixes = []struct {
	prefix   string
	severity Severity
}{
	{"critical:", SeverityCritical},
	{"crit:", SeverityCritical},
	{"error:", SeverityError},
	{"err:", SeverityError},
	{"warning:", SeverityWarning},
	{"warn:", SeverityWarning},
	{"information:", SeverityInfo},
	{"info:", SeverityInfo},
	{"debug:", SeverityDebug},
	{"dbg:", SeverityDebug},
	{"trace:", SeverityTrace},
	{"trc:", SeverityTrace},
}

const (
	maxLineBytes    = 1024 * 1024
	truncatedSuffix = " ...(truncated)"
)

type outputLine struct {
	stream   stream
	severity Severity
	text     string
}

// classifyLine strips a severity prefix from line. Unprefixed lines are info on either stream.
func classifyLine(line string, from stream) outputLine {
	lower := strings.ToLower(line)
	for _, p := range severityPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return outputLine{stream: from, severity: p.severity, text: strings.TrimSpace(line[len(p.prefix):])}
		}
	}
	return outputLine{stream: from, severity: SeverityInfo, text: line}
}

// readOutput pushes every non-blank line of r onto lines until r is exhausted. Lines longer than maxLineBytes
// are cut short and the rest of the line is discarded, so the pipe keeps draining.
func readOutput(r io.Reader, from stream, lines chan<- outputLine, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	truncated := false
	emit := func() {
		line := strings.TrimRight(string(buf), "\r")
		buf, truncated = buf[:0], false
		if strings.TrimSpace(line) == "" {
			return
		}
		lines <- classifyLine(line, from)
	}
	for {
		frag, isPrefix, err := reader.ReadLine()
		if room := maxLineBytes - len(buf); len(frag) > room {
			frag = frag[:room]
			truncated = true
		}
		buf = append(buf, frag...)
		if err != nil {
			if len(buf) > 0 {
				if truncated {
					buf = append(buf, truncatedSuffix...)
				}
				emit()
			}
			return
		}
		if isPrefix {
			continue
		}
		if truncated {
			buf = append(buf, truncatedSuffix...)
		}
		emit()
	}
}

// logOutput drains lines into logger until the channel is closed.
func logOutput(logger logr.Logger, lines <-chan outputLine) {
	for l := range lines {
		kv := []any{"stream", l.stream, "severity", l.severity.String()}
		switch l.severity {
		case SeverityCritical, SeverityError:
			logger.Error(nil, l.text, kv...)
		case SeverityWarning, SeverityInfo:
			logger.Info(l.text, kv...)
		case SeverityDebug:
			logger.V(logutil.DEBUG).Info(l.text, kv...)
		default:
			logger.V(logutil.TRACE).Info(l.text, kv...)
		}
	}
}
