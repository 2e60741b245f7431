// Package retrieval implements the knowledge-base tools exposed to the
// model: semantic document search, source-scoped search, and an index
// summary.
//
// Three tools are exported via [Service.Tools]:
//   - retrieve_documents: similarity search across all documents.
//   - search_by_source: similarity search restricted to one source.
//   - get_knowledge_base_info: human-readable index statistics.
//
// All handlers are safe for concurrent use.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/saianfordx/vellum/internal/embed"
	"github.com/saianfordx/vellum/internal/tools"
	"github.com/saianfordx/vellum/internal/tools/sourcematch"
	"github.com/saianfordx/vellum/pkg/docstore"
	"github.com/saianfordx/vellum/pkg/index"
	"github.com/saianfordx/vellum/pkg/types"
)

// Tool names, also used by the tool host to route its default fallback.
const (
	ToolRetrieveDocuments = "retrieve_documents"
	ToolSearchBySource    = "search_by_source"
	ToolKnowledgeBaseInfo = "get_knowledge_base_info"
)

const (
	// DefaultNumResults is used when a call omits numResults.
	DefaultNumResults = 5

	// MaxNumResults caps how many chunks a single tool call may return.
	MaxNumResults = 20

	defaultIndexName = "knowledge-base"
)

// Document is one retrieved chunk in a tool result.
type Document struct {
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	DocumentID    string  `json:"documentId"`
	Source        string  `json:"source"`
	DocumentTitle string  `json:"documentTitle"`
	PageNumber    int     `json:"pageNumber"`
	ChunkIndex    int     `json:"chunkIndex"`
}

// Result is the wire shape of retrieve_documents and search_by_source.
type Result struct {
	Documents    []Document `json:"documents"`
	TotalResults int        `json:"totalResults"`
	SearchQuery  string     `json:"searchQuery"`
	Message      string     `json:"message,omitempty"`
}

// Info is the wire shape of get_knowledge_base_info.
type Info struct {
	TotalDocuments int     `json:"totalDocuments"`
	TotalChunks    int     `json:"totalChunks"`
	IndexFullness  float64 `json:"indexFullness"`
	Dimensions     int     `json:"dimensions"`
	IndexName      string  `json:"indexName"`
	Message        string  `json:"message"`
}

// Service holds the shared dependencies of the retrieval tools.
type Service struct {
	batcher   *embed.Batcher
	index     index.Index
	store     docstore.Store
	matcher   *sourcematch.Matcher
	indexName string
}

// Option configures a Service.
type Option func(*Service)

// WithDocstore enables document counting and "did you mean" source
// suggestions backed by the document store.
func WithDocstore(store docstore.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithIndexName sets the index name reported by get_knowledge_base_info.
func WithIndexName(name string) Option {
	return func(s *Service) { s.indexName = name }
}

// WithMatcher overrides the source-name matcher.
func WithMatcher(m *sourcematch.Matcher) Option {
	return func(s *Service) { s.matcher = m }
}

// New wires a retrieval tool service over the given batcher and index.
func New(batcher *embed.Batcher, idx index.Index, opts ...Option) (*Service, error) {
	if batcher == nil {
		return nil, fmt.Errorf("retrieval: batcher must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("retrieval: index must not be nil")
	}
	s := &Service{
		batcher:   batcher,
		index:     idx,
		matcher:   sourcematch.New(),
		indexName: defaultIndexName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// retrieveArgs is the JSON-decoded input for the "retrieve_documents" tool.
type retrieveArgs struct {
	// Query is the natural-language search text.
	Query string `json:"query"`

	// NumResults caps the number of returned chunks. Zero means the default.
	NumResults int `json:"numResults"`

	// Filter optionally restricts candidates by metadata before ranking.
	Filter map[string]any `json:"filter"`
}

// searchBySourceArgs is the JSON-decoded input for "search_by_source".
type searchBySourceArgs struct {
	// Source is the document source or title to search within.
	Source string `json:"source"`

	// Query is the natural-language search text.
	Query string `json:"query"`

	// NumResults caps the number of returned chunks. Zero means the default.
	NumResults int `json:"numResults"`
}

// retrieveHandler implements "retrieve_documents": embed the query, rank
// stored chunks by cosine similarity, optionally constrained by a metadata
// filter applied before ranking.
func (s *Service) retrieveHandler(ctx context.Context, args string) (string, error) {
	var a retrieveArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("%w: retrieve_documents: parse arguments: %w", tools.ErrInvalidInput, err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return "", fmt.Errorf("%w: retrieve_documents: query must not be empty", tools.ErrInvalidInput)
	}
	topK, err := normalizeNumResults(a.NumResults)
	if err != nil {
		return "", fmt.Errorf("%w: retrieve_documents: %w", tools.ErrInvalidInput, err)
	}

	var filter index.Filter
	if a.Filter != nil {
		filter = index.Filter(a.Filter)
		if err := filter.Validate(); err != nil {
			return "", fmt.Errorf("%w: retrieve_documents: %w", tools.ErrInvalidInput, err)
		}
	}

	res, err := s.runSearch(ctx, a.Query, topK, filter)
	if err != nil {
		return "", err
	}
	return marshalResult(res)
}

// searchBySourceHandler implements "search_by_source". The source value is
// matched against both the source and documentTitle metadata fields; when
// nothing matches, the handler suggests the closest known source name.
func (s *Service) searchBySourceHandler(ctx context.Context, args string) (string, error) {
	var a searchBySourceArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("%w: search_by_source: parse arguments: %w", tools.ErrInvalidInput, err)
	}
	if strings.TrimSpace(a.Source) == "" {
		return "", fmt.Errorf("%w: search_by_source: source must not be empty", tools.ErrInvalidInput)
	}
	if strings.TrimSpace(a.Query) == "" {
		return "", fmt.Errorf("%w: search_by_source: query must not be empty", tools.ErrInvalidInput)
	}
	topK, err := normalizeNumResults(a.NumResults)
	if err != nil {
		return "", fmt.Errorf("%w: search_by_source: %w", tools.ErrInvalidInput, err)
	}

	filter := index.Filter{
		"$or": []index.Filter{
			{"source": a.Source},
			{"documentTitle": a.Source},
		},
	}
	res, err := s.runSearch(ctx, a.Query, topK, filter)
	if err != nil {
		return "", err
	}
	if res.TotalResults == 0 {
		res.Message = s.suggestSource(ctx, a.Source)
	}
	return marshalResult(res)
}

// infoHandler implements "get_knowledge_base_info".
func (s *Service) infoHandler(ctx context.Context, args string) (string, error) {
	if err := requireEmptyArgs(args); err != nil {
		return "", fmt.Errorf("%w: get_knowledge_base_info: %w", tools.ErrInvalidInput, err)
	}

	stats, err := s.index.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieval: index stats: %w", err)
	}
	if stats == nil {
		stats = &index.Stats{}
	}

	totalDocs := stats.TotalVectorCount
	if s.store != nil {
		docs, err := s.store.List(ctx)
		if err != nil {
			return "", fmt.Errorf("retrieval: list documents: %w", err)
		}
		totalDocs = len(docs)
	}

	info := Info{
		TotalDocuments: totalDocs,
		TotalChunks:    stats.TotalVectorCount,
		IndexFullness:  stats.IndexFullness,
		Dimensions:     stats.Dimension,
		IndexName:      s.indexName,
		Message: fmt.Sprintf(
			"The knowledge base %q holds %d documents across %d indexed chunks (%d-dimensional vectors, %.1f%% full).",
			s.indexName, totalDocs, stats.TotalVectorCount, stats.Dimension, stats.IndexFullness*100,
		),
	}
	out, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("retrieval: encode result: %w", err)
	}
	return string(out), nil
}

// runSearch embeds the query and ranks stored chunks against it.
func (s *Service) runSearch(ctx context.Context, query string, topK int, filter index.Filter) (Result, error) {
	vec, err := s.batcher.EmbedOne(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: embed query: %w", err)
	}
	matches, err := s.index.Search(ctx, vec, index.Query{TopK: topK, Filter: filter})
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: search: %w", err)
	}

	res := Result{
		Documents:    make([]Document, 0, len(matches)),
		TotalResults: len(matches),
		SearchQuery:  query,
	}
	for _, m := range matches {
		res.Documents = append(res.Documents, Document{
			Content:       m.Metadata.Text,
			Score:         m.Score,
			DocumentID:    m.Metadata.DocumentID,
			Source:        m.Metadata.Source,
			DocumentTitle: m.Metadata.DocumentTitle,
			PageNumber:    m.Metadata.PageNumber,
			ChunkIndex:    m.Metadata.ChunkIndex,
		})
	}
	return res, nil
}

// suggestSource proposes the closest known source for a name that matched
// nothing. Returns a plain notice when no suggestion clears the thresholds.
func (s *Service) suggestSource(ctx context.Context, requested string) string {
	notFound := fmt.Sprintf("No documents found for source %q.", requested)
	if s.store == nil || s.matcher == nil {
		return notFound
	}
	docs, err := s.store.List(ctx)
	if err != nil {
		return notFound
	}

	seen := make(map[string]struct{}, len(docs))
	var known []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		known = append(known, name)
	}
	for _, d := range docs {
		add(d.Metadata.Source)
		add(d.Metadata.OriginalName)
		add(d.Filename)
	}

	if suggestion, _, ok := s.matcher.Match(requested, known); ok {
		return fmt.Sprintf("No documents found for source %q. Did you mean %q?", requested, suggestion)
	}
	return notFound
}

// Tools returns the retrieval tool set ready for registration with the tool
// host.
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        ToolRetrieveDocuments,
				Description: "Search the knowledge base for document chunks semantically similar to a query. Returns the matching chunks with their source, title, page number, and similarity score. Use this whenever the user asks about stored documents.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Natural-language description of the information to find.",
						},
						"numResults": map[string]any{
							"type":        "integer",
							"description": "Maximum number of chunks to return (1-20). Defaults to 5.",
							"minimum":     1,
							"maximum":     MaxNumResults,
						},
						"filter": map[string]any{
							"type":        "object",
							"description": "Optional metadata filter, e.g. {\"source\": \"handbook.pdf\"} or {\"$or\": [{\"source\": \"a.pdf\"}, {\"documentTitle\": \"a.pdf\"}]}.",
						},
					},
					"required": []string{"query"},
				},
				Idempotent: true,
			},
			Handler: s.retrieveHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolSearchBySource,
				Description: "Search within a single document, matching the given source against both the source and documentTitle metadata fields. Use when the user names a specific file or document.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source": map[string]any{
							"type":        "string",
							"description": "Document source or title to search within, e.g. a filename.",
						},
						"query": map[string]any{
							"type":        "string",
							"description": "Natural-language description of the information to find.",
						},
						"numResults": map[string]any{
							"type":        "integer",
							"description": "Maximum number of chunks to return (1-20). Defaults to 5.",
							"minimum":     1,
							"maximum":     MaxNumResults,
						},
					},
					"required": []string{"source", "query"},
				},
				Idempotent: true,
			},
			Handler: s.searchBySourceHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolKnowledgeBaseInfo,
				Description: "Report what the knowledge base currently holds: document count, indexed chunk count, vector dimensionality, and index name. Takes no arguments.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
				Idempotent: true,
			},
			Handler: s.infoHandler,
		},
	}
}

// normalizeNumResults applies the default and enforces the 1-20 range.
func normalizeNumResults(n int) (int, error) {
	if n == 0 {
		return DefaultNumResults, nil
	}
	if n < 1 || n > MaxNumResults {
		return 0, fmt.Errorf("numResults must be between 1 and %d, got %d", MaxNumResults, n)
	}
	return n, nil
}

// requireEmptyArgs accepts only an absent or empty JSON object argument.
func requireEmptyArgs(args string) error {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" || trimmed == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if len(m) > 0 {
		return fmt.Errorf("tool takes no arguments")
	}
	return nil
}

func marshalResult(res Result) (string, error) {
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("retrieval: encode result: %w", err)
	}
	return string(out), nil
}
