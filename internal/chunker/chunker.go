// Package chunker splits normalized text into overlapping segments bounded by a
// maximum size, preferring paragraph, line, sentence, and clause boundaries.
package chunker

import "strings"

// Chunker splits text into chunks. It is stateless and safe for concurrent use.
type Chunker struct {
	opts Options
	// budget is the size of a raw chunk before the overlap prefix is added.
	budget int
	// stride is the step between forced fixed-size windows.
	stride int
}

// NewChunker returns a chunker for opts. Zero MaxChars and empty Separators take
// their defaults; OverlapChars is used as given.
func NewChunker(opts Options) (*Chunker, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	budget := opts.MaxChars
	if opts.OverlapChars > 0 {
		// Leave room for the overlap prefix and its joining space.
		budget = opts.MaxChars - opts.OverlapChars - 1
	}
	stride := budget - opts.OverlapChars
	if stride <= 0 {
		stride = budget
	}
	return &Chunker{opts: opts, budget: budget, stride: stride}, nil
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk returns the chunks of text in order. Every chunk is non-empty and at
// most MaxChars characters long. Empty or whitespace-only input yields nil.
func (c *Chunker) Chunk(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= c.opts.MaxChars {
		return []string{text}
	}
	return c.addOverlap(c.split(text))
}

// addOverlap prefixes every chunk after the first with the trimmed trailing
// OverlapChars of the previous raw chunk, unless the chunk already starts with it.
func (c *Chunker) addOverlap(raw []string) []string {
	chunks := make([]string, 0, len(raw))
	for i, r := range raw {
		chunk := strings.TrimSpace(r)
		if i > 0 && c.opts.OverlapChars > 0 {
			overlap := strings.TrimSpace(tail(raw[i-1], c.opts.OverlapChars))
			if overlap != "" && !strings.HasPrefix(chunk, overlap) {
				chunk = overlap + " " + chunk
			}
		}
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// frame is one level of separator splitting: the parts of a piece of text split
// on Separators[sep], the next part to place, and the chunk being accumulated.
type frame struct {
	parts   []string
	next    int
	sep     int
	current string
}

// split greedily packs separator-delimited parts into raw chunks of at most
// budget characters. A part that is itself too large is split on the next
// separator; when the separators run out it is cut into fixed windows. The
// explicit stack bounds recursion depth by the number of separators.
// Concatenating the raw chunks of text without forced windows yields text.
func (c *Chunker) split(text string) []string {
	root, forced := c.open(text, 0)
	if root == nil {
		return forced
	}
	var out []string
	stack := []*frame{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.parts) {
			part := top.parts[top.next]
			top.next++
			if runeLen(top.current)+runeLen(part) <= c.budget {
				top.current += part
				continue
			}
			if top.current != "" {
				out = append(out, top.current)
				top.current = ""
			}
			if runeLen(part) <= c.budget {
				top.current = part
				continue
			}
			child, pieces := c.open(part, top.sep+1)
			if child != nil {
				stack = append(stack, child)
				continue
			}
			// The last piece stays open so following parts can join it.
			out = append(out, pieces[:len(pieces)-1]...)
			top.current = pieces[len(pieces)-1]
			continue
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			if top.current != "" {
				out = append(out, top.current)
			}
			break
		}
		stack[len(stack)-1].current = top.current
	}
	return out
}

// open finds the first separator at or after sep that occurs in text and
// returns a frame for it. When none occurs it returns the forced windows instead.
func (c *Chunker) open(text string, sep int) (*frame, []string) {
	for ; sep < len(c.opts.Separators); sep++ {
		if parts := splitAfter(text, c.opts.Separators[sep]); len(parts) > 1 {
			return &frame{parts: parts, sep: sep}, nil
		}
	}
	return nil, c.forceSplit(text)
}

// forceSplit cuts text into windows of budget characters every stride
// characters, on rune boundaries. Consecutive windows share OverlapChars.
func (c *Chunker) forceSplit(text string) []string {
	runes := []rune(text)
	var pieces []string
	for i := 0; i < len(runes); i += c.stride {
		end := i + c.budget
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return pieces
}
