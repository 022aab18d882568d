package cli

import "autograder/internal/config"

// Flags holds command-line flags
type Flags struct {
	Processors int
	Filter     string
	SourcePath string
	TestCases  bool
	Events     bool
	Submit     bool
	Verbose    bool
	SaveDB     bool
	Open       bool
	FailFast   bool
	Live       bool
}

// ToConfigFlags converts CLI flags to config flags; bundle is the optional
// positional bundle argument
func (f *Flags) ToConfigFlags(bundle string) config.Flags {
	return config.Flags{
		Processors: f.Processors,
		Filter:     f.Filter,
		BundlePath: bundle,
		SourcePath: f.SourcePath,
		TestCases:  f.TestCases,
		Events:     f.Events,
		Submit:     f.Submit,
		Verbose:    f.Verbose,
		SaveDB:     f.SaveDB,
		Open:       f.Open,
		FailFast:   f.FailFast,
		Live:       f.Live,
	}
}
