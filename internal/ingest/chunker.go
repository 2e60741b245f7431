package ingest

import (
	"fmt"
	"strings"

	"github.com/saianfordx/vellum/pkg/document"
)

// Chunking defaults. A 1500-character window with a 200-character overlap
// keeps individual chunks well inside embedding-model input limits while
// preserving context across chunk boundaries.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200

	// charsPerPage drives the page-number heuristic for plain text, where
	// no real pagination exists.
	charsPerPage = 2000
)

// DefaultSeparators is the break preference for chunk boundaries, strongest
// first. The trailing empty string means "hard cut at the window edge" and
// guarantees the search always resolves.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", " ", ""}
}

// ChunkerConfig holds the sliding-window parameters.
type ChunkerConfig struct {
	ChunkSize    int      // maximum characters per chunk (small separator slack allowed)
	ChunkOverlap int      // characters carried over between consecutive chunks
	Separators   []string // boundary preference, strongest first; nil means DefaultSeparators
}

// DefaultChunkerConfig returns the standard 1500/200 window with the default
// separators. A zero ChunkOverlap elsewhere means literally no overlap, so
// the 200-character default is only applied here.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   DefaultSeparators(),
	}
}

// Chunker splits normalized document text into overlapping chunks, breaking
// at the strongest separator available near each window edge.
type Chunker struct {
	size    int
	overlap int
	seps    [][]rune
}

// NewChunker validates cfg and returns a ready Chunker. A zero ChunkSize
// falls back to DefaultChunkSize and nil Separators to DefaultSeparators;
// ChunkOverlap is taken as given.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize < 0 {
		return nil, fmt.Errorf("ingest: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("ingest: chunk overlap must not be negative, got %d", cfg.ChunkOverlap)
	}
	seps := cfg.Separators
	if seps == nil {
		seps = DefaultSeparators()
	}
	c := &Chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}
	for _, s := range seps {
		c.seps = append(c.seps, []rune(s))
	}
	return c, nil
}

// Chunk splits doc.Content into chunks with contiguous indexes starting at
// zero. Offsets count characters (runes), not bytes. An empty document
// yields no chunks; a document no longer than the chunk size yields exactly
// one.
//
// Each chunk ID is "<documentID>-chunk-<index>" so all chunks of a document
// can be located, and later removed, by prefix.
func (c *Chunker) Chunk(doc *document.Document) []document.Chunk {
	content := []rune(doc.Content)
	if len(content) == 0 {
		return nil
	}
	source := doc.Metadata.Source
	if source == "" {
		source = doc.Filename
	}
	title := doc.Metadata.OriginalName
	if title == "" {
		title = doc.Filename
	}

	if len(content) <= c.size {
		text := strings.TrimSpace(string(content))
		if text == "" {
			return nil
		}
		return []document.Chunk{c.newChunk(doc.ID, 0, text, 0, len(content)-1, source, title)}
	}

	var chunks []document.Chunk
	start := 0
	idx := 0
	for start < len(content) {
		end := start + c.size
		if end > len(content) {
			end = len(content)
		}
		if end < len(content) {
			end = c.breakAt(content, start, end)
		}
		text := strings.TrimSpace(string(content[start:end]))
		if text != "" {
			chunks = append(chunks, c.newChunk(doc.ID, idx, text, start, end-1, source, title))
			idx++
		}
		if end >= len(content) {
			break
		}
		// The max guard keeps the window moving even when the overlap
		// exceeds what this iteration actually consumed.
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func (c *Chunker) newChunk(docID string, idx int, text string, startChar, endChar int, source, title string) document.Chunk {
	return document.Chunk{
		ID:         fmt.Sprintf("%s-chunk-%d", docID, idx),
		DocumentID: docID,
		Content:    text,
		Index:      idx,
		Metadata: document.ChunkMetadata{
			StartChar:     startChar,
			EndChar:       endChar,
			PageNumber:    startChar/charsPerPage + 1,
			Source:        source,
			DocumentTitle: title,
		},
	}
}

// breakAt picks the chunk end for the window starting at start with
// candidate edge end. The first separator with an occurrence strictly after
// start wins; within that separator the occurrence closest to the edge is
// used and the separator stays with the left chunk, so the returned end may
// exceed the candidate by up to the separator length. An empty separator
// stops the search and cuts at the edge.
func (c *Chunker) breakAt(content []rune, start, end int) int {
	for _, sep := range c.seps {
		if len(sep) == 0 {
			break
		}
		hi := end + len(sep)
		if hi > len(content) {
			hi = len(content)
		}
		pos := lastIndexRunes(content, sep, start+1, hi)
		if pos < 0 {
			continue
		}
		return pos + len(sep)
	}
	return end
}

// lastIndexRunes returns the largest i in [lo, hi-len(sep)] such that
// content[i:i+len(sep)] equals sep, or -1 if there is none.
func lastIndexRunes(content, sep []rune, lo, hi int) int {
	for i := hi - len(sep); i >= lo; i-- {
		if equalRunes(content[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
