package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	frameHeader    = regexp.MustCompile(`File "(.+?)", line (\d+)`)
	frameLine      = regexp.MustCompile(`^\s*File "(.+?)", line (\d+)(?:, in (.+))?$`)
	exceptionLine  = regexp.MustCompile(`^([A-Za-z_][\w.]*(?:Error|Exception|Exit|Interrupt|Warning|Iteration))(?::\s?(.*))?$`)
	absolutePath   = regexp.MustCompile(`(^|[\s'"(=\[])((?:/[^/\s'"():,\[\]]+)+)`)
	tracebackStart = "Traceback (most recent call last):"
)

// TracebackParser understands Python style tracebacks
type TracebackParser struct {
	workDir string
}

// NewTracebackParser creates a new TracebackParser.
// Occurrences of workDir in stderr are removed by Clean.
func NewTracebackParser(workDir string) *TracebackParser {
	return &TracebackParser{workDir: workDir}
}

// Clean shortens traceback file paths to their base names, strips the
// working directory and reduces any remaining absolute path to its base name.
func (p *TracebackParser) Clean(stderr string) string {
	out := frameHeader.ReplaceAllStringFunc(stderr, func(m string) string {
		sub := frameHeader.FindStringSubmatch(m)
		return fmt.Sprintf(`File "%s", line %s`, filepath.Base(sub[1]), sub[2])
	})
	if p.workDir != "" {
		dir := strings.TrimSuffix(p.workDir, string(filepath.Separator))
		out = strings.ReplaceAll(out, dir+string(filepath.Separator), "")
	}
	return absolutePath.ReplaceAllStringFunc(out, func(m string) string {
		sub := absolutePath.FindStringSubmatch(m)
		return sub[1] + filepath.Base(sub[2])
	})
}

// ParseFailure reads the last traceback in stderr
func (p *TracebackParser) ParseFailure(stderr string) (Failure, bool) {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")

	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == tracebackStart {
			start = i
			break
		}
	}

	var failure Failure
	from := 0
	if start >= 0 {
		from = start + 1
	}
	for i := from; i < len(lines); i++ {
		line := lines[i]
		if m := frameLine.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			frame := Frame{File: filepath.Base(m[1]), Line: n, Function: m[3]}
			// The source line follows the header when it is available.
			if i+1 < len(lines) && isCodeLine(lines[i+1]) {
				frame.Code = strings.TrimSpace(lines[i+1])
				i++
			}
			failure.Frames = append(failure.Frames, frame)
			continue
		}
		if m := exceptionLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			failure.Type = m[1]
			failure.Message = m[2]
		}
	}

	if failure.Type == "" {
		return Failure{}, false
	}
	return failure, true
}

// Summarize renders a one-line description of the failure in stderr,
// falling back to its last non-empty line.
func Summarize(p Parser, stderr string) string {
	if failure, ok := p.ParseFailure(stderr); ok {
		text := failure.Type
		if failure.Message != "" {
			text += ": " + failure.Message
		}
		if frame, ok := failure.Location(); ok {
			text += fmt.Sprintf(" (%s:%d)", frame.File, frame.Line)
		}
		return text
	}

	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

func isCodeLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(line, "    ") {
		return false
	}
	if frameLine.MatchString(line) {
		return false
	}
	// caret markers under the code line
	return strings.Trim(trimmed, "^~ ") != ""
}
