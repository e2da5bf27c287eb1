package findings

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	SourceNone      = "none"
	SourceStatic    = "static"
	SourceAnthropic = "anthropic"
	SourceOpenAI    = "openai"
)

// BuildOptions configures Build.
type BuildOptions struct {
	Timeout     time.Duration
	OpenAIModel string
	StaticPath  string
	Logger      *zap.Logger
}

// ParseSources splits a comma-separated source list, dropping blanks and
// duplicates.
func ParseSources(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// CheckSources rejects unknown names and "none" mixed with real sources.
func CheckSources(sources []string) error {
	for _, name := range sources {
		switch name {
		case SourceNone:
			if len(sources) > 1 {
				return fmt.Errorf("findings source %q cannot be combined with %v", SourceNone, sources)
			}
		case SourceStatic, SourceAnthropic, SourceOpenAI:
		default:
			return fmt.Errorf("unknown findings source %q", name)
		}
	}
	return nil
}

// Build assembles a Multi from named sources. It returns nil when no
// source is selected or "none" is the only one named.
func Build(sources []string, opts BuildOptions) (*Multi, error) {
	if err := CheckSources(sources); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var providers []Provider
	for _, name := range sources {
		switch name {
		case SourceNone:
			return nil, nil
		case SourceStatic:
			var (
				s   *Static
				err error
			)
			if opts.StaticPath != "" {
				s, err = LoadStatic(opts.StaticPath)
			} else {
				s, err = NewStatic()
			}
			if err != nil {
				return nil, err
			}
			providers = append(providers, s)
		case SourceAnthropic:
			caller, err := NewAnthropicCallerFromEnv()
			if err != nil {
				return nil, err
			}
			providers = append(providers, NewLLM(SourceAnthropic, caller, logger))
		case SourceOpenAI:
			caller, err := NewOpenAICallerFromEnv(opts.OpenAIModel)
			if err != nil {
				return nil, err
			}
			providers = append(providers, NewLLM(SourceOpenAI, caller, logger))
		}
	}
	if len(providers) == 0 {
		return nil, nil
	}
	return NewMulti(providers, WithTimeout(opts.Timeout), WithLogger(logger)), nil
}
