package ingest

import "strings"

// separators are tried in order when splitting text: paragraph breaks
// first, then lines, then words, then a hard character split as the last
// resort for pathological inputs with no whitespace.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts document text into bounded-size chunks with bounded overlap.
// It prefers to cut at paragraph and line boundaries, falling back to finer
// separators only when a piece exceeds the chunk size.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive size falls back to 1024;
// a negative or too-large overlap falls back to 100.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 100
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the ordered chunks of text. Whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	sep := seps[0]
	if sep == "" {
		return s.hardSplit(text)
	}

	var pieces []string
	for _, p := range strings.Split(text, sep) {
		switch {
		case p == "":
			// skip empty fragments from consecutive separators
		case len(p) > s.chunkSize:
			pieces = append(pieces, s.split(p, seps[1:])...)
		default:
			pieces = append(pieces, p)
		}
	}
	return s.merge(pieces, sep)
}

// merge greedily packs pieces into chunks up to chunkSize, carrying the
// trailing pieces of each chunk into the next one as overlap.
func (s *Splitter) merge(pieces []string, sep string) []string {
	var (
		chunks []string
		window []string
		length int
	)

	windowLen := func() int {
		n := length
		if len(window) > 1 {
			n += len(sep) * (len(window) - 1)
		}
		return n
	}

	for _, p := range pieces {
		for len(window) > 0 && windowLen()+len(sep)+len(p) > s.chunkSize {
			if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" &&
				(len(chunks) == 0 || chunks[len(chunks)-1] != chunk) {
				chunks = append(chunks, chunk)
			}
			// shrink the window to at most the overlap budget
			for len(window) > 0 && (windowLen() > s.overlap || windowLen()+len(sep)+len(p) > s.chunkSize) {
				length -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		length += len(p)
	}

	if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" &&
		(len(chunks) == 0 || chunks[len(chunks)-1] != chunk) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// hardSplit slices text into rune windows when no separator applies.
func (s *Splitter) hardSplit(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap
	if step <= 0 {
		step = s.chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
