package parser

// Parser turns the raw stderr of a candidate run into readable feedback
type Parser interface {
	// Clean rewrites stderr so it does not leak grader paths
	Clean(stderr string) string
	// ParseFailure extracts the error that ended the run, if any
	ParseFailure(stderr string) (Failure, bool)
}

// Frame is one location of a traceback
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
	Code     string `json:"code,omitempty"`
}

// Failure is the final error of a traceback together with its call chain
type Failure struct {
	Type    string  `json:"type"`
	Message string  `json:"message,omitempty"`
	Frames  []Frame `json:"frames,omitempty"`
}

// Location returns the innermost frame, which is where the error was raised
func (f Failure) Location() (Frame, bool) {
	if len(f.Frames) == 0 {
		return Frame{}, false
	}
	return f.Frames[len(f.Frames)-1], true
}
