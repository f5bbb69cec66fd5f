package chunker

import "fmt"

const (
	// DefaultMaxChars is roughly 512 tokens of English text.
	DefaultMaxChars     = 2000
	DefaultOverlapChars = 200
)

// DefaultSeparators returns split points ordered from coarse to fine:
// paragraph, line, sentence end, clause, word.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}
}

// Options controls chunk size, overlap, and preferred boundaries.
// Sizes are measured in characters (runes), not bytes.
type Options struct {
	MaxChars     int      `yaml:"max_chars"`
	OverlapChars int      `yaml:"overlap_chars"`
	Separators   []string `yaml:"separators"`
}

// DefaultOptions returns the default chunking configuration.
func DefaultOptions() Options {
	return Options{
		MaxChars:     DefaultMaxChars,
		OverlapChars: DefaultOverlapChars,
		Separators:   DefaultSeparators(),
	}
}

// withDefaults fills zero MaxChars and empty Separators and validates the result.
func (o Options) withDefaults() (Options, error) {
	if o.MaxChars == 0 {
		o.MaxChars = DefaultMaxChars
	}
	if len(o.Separators) == 0 {
		o.Separators = DefaultSeparators()
	}
	if o.MaxChars < 0 {
		return o, fmt.Errorf("max chars must be positive, got %d", o.MaxChars)
	}
	if o.OverlapChars < 0 {
		return o, fmt.Errorf("overlap chars must not be negative, got %d", o.OverlapChars)
	}
	if o.OverlapChars*2 >= o.MaxChars {
		return o, fmt.Errorf("overlap chars (%d) must be less than half of max chars (%d)", o.OverlapChars, o.MaxChars)
	}
	for i, sep := range o.Separators {
		if sep == "" {
			return o, fmt.Errorf("separator %d is empty", i)
		}
	}
	return o, nil
}
