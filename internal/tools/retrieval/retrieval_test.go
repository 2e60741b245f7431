package retrieval_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/saianfordx/vellum/internal/embed"
	"github.com/saianfordx/vellum/internal/tools"
	"github.com/saianfordx/vellum/internal/tools/retrieval"
	docmem "github.com/saianfordx/vellum/pkg/docstore/memory"
	"github.com/saianfordx/vellum/pkg/document"
	"github.com/saianfordx/vellum/pkg/index"
	idxmock "github.com/saianfordx/vellum/pkg/index/mock"
	embmock "github.com/saianfordx/vellum/pkg/provider/embeddings/mock"
)

const testDims = 8

// newService builds a retrieval service over a mock index and a mock
// embedding provider so tests can inspect every downstream call.
func newService(t *testing.T, idx *idxmock.Index, opts ...retrieval.Option) (*retrieval.Service, *embmock.Provider) {
	t.Helper()
	provider := &embmock.Provider{DimensionsValue: testDims}
	batcher, err := embed.New(provider, embed.WithBatchDelay(0))
	if err != nil {
		t.Fatalf("embed.New: %v", err)
	}
	svc, err := retrieval.New(batcher, idx, opts...)
	if err != nil {
		t.Fatalf("retrieval.New: %v", err)
	}
	return svc, provider
}

// findTool returns the registered tool with the given name.
func findTool(t *testing.T, svc *retrieval.Service, name string) tools.Tool {
	t.Helper()
	for _, tool := range svc.Tools() {
		if tool.Definition.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %q not found", name)
	return tools.Tool{}
}

// sampleMatches returns two canned search hits.
func sampleMatches() []index.Match {
	return []index.Match{
		{
			Record: index.Record{
				ID: "doc-1-chunk-0",
				Metadata: index.Metadata{
					DocumentID:    "doc-1",
					ChunkIndex:    0,
					StartChar:     0,
					EndChar:       42,
					PageNumber:    1,
					Source:        "handbook.pdf",
					DocumentTitle: "Employee Handbook",
					Text:          "Vacation accrues at two days per month.",
				},
			},
			Score: 0.93,
		},
		{
			Record: index.Record{
				ID: "doc-1-chunk-7",
				Metadata: index.Metadata{
					DocumentID:    "doc-1",
					ChunkIndex:    7,
					StartChar:     9100,
					EndChar:       9400,
					PageNumber:    5,
					Source:        "handbook.pdf",
					DocumentTitle: "Employee Handbook",
					Text:          "Unused vacation carries over up to five days.",
				},
			},
			Score: 0.81,
		},
	}
}

// TestService_Tools verifies the tool set exposes the three knowledge-base
// tools with handlers and sensible schemas.
func TestService_Tools(t *testing.T) {
	svc, _ := newService(t, &idxmock.Index{})

	toolset := svc.Tools()
	if got, want := len(toolset), 3; got != want {
		t.Fatalf("len(Tools()) = %d, want %d", got, want)
	}

	want := map[string]bool{
		retrieval.ToolRetrieveDocuments: false,
		retrieval.ToolSearchBySource:    false,
		retrieval.ToolKnowledgeBaseInfo: false,
	}
	for _, tool := range toolset {
		name := tool.Definition.Name
		if _, ok := want[name]; !ok {
			t.Errorf("unexpected tool %q", name)
			continue
		}
		want[name] = true
		if tool.Handler == nil {
			t.Errorf("tool %q has nil handler", name)
		}
		if !tool.Definition.Idempotent {
			t.Errorf("tool %q should be idempotent", name)
		}
		if tool.Definition.Parameters["type"] != "object" {
			t.Errorf("tool %q parameters type = %v, want object", name, tool.Definition.Parameters["type"])
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q missing from Tools()", name)
		}
	}

	def := findTool(t, svc, retrieval.ToolRetrieveDocuments).Definition
	required, _ := def.Parameters["required"].([]string)
	if !reflect.DeepEqual(required, []string{"query"}) {
		t.Errorf("retrieve_documents required = %v, want [query]", required)
	}
}

// TestRetrieveDocuments verifies the happy path: the query is embedded, the
// index is searched with the default result count, and matches map onto the
// result document fields.
func TestRetrieveDocuments(t *testing.T) {
	idx := &idxmock.Index{SearchMatches: sampleMatches()}
	svc, provider := newService(t, idx)
	handler := findTool(t, svc, retrieval.ToolRetrieveDocuments).Handler

	out, err := handler(context.Background(), `{"query":"how much vacation do I get"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var res retrieval.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got, want := res.SearchQuery, "how much vacation do I get"; got != want {
		t.Errorf("SearchQuery = %q, want %q", got, want)
	}
	if got, want := res.TotalResults, 2; got != want {
		t.Fatalf("TotalResults = %d, want %d", got, want)
	}
	if got, want := len(res.Documents), 2; got != want {
		t.Fatalf("len(Documents) = %d, want %d", got, want)
	}
	first := res.Documents[0]
	if first.Content != "Vacation accrues at two days per month." {
		t.Errorf("Documents[0].Content = %q", first.Content)
	}
	if first.Score != 0.93 || first.DocumentID != "doc-1" || first.Source != "handbook.pdf" {
		t.Errorf("Documents[0] = %+v, metadata not mapped", first)
	}
	if first.DocumentTitle != "Employee Handbook" || first.PageNumber != 1 || first.ChunkIndex != 0 {
		t.Errorf("Documents[0] = %+v, metadata not mapped", first)
	}
	if res.Message != "" {
		t.Errorf("Message = %q, want empty on hits", res.Message)
	}

	if got, want := len(provider.EmbedCalls), 1; got != want {
		t.Fatalf("embed calls = %d, want %d", got, want)
	}
	if got, want := provider.EmbedCalls[0].Text, "how much vacation do I get"; got != want {
		t.Errorf("embedded text = %q, want %q", got, want)
	}
	if got, want := len(idx.SearchCalls), 1; got != want {
		t.Fatalf("search calls = %d, want %d", got, want)
	}
	call := idx.SearchCalls[0]
	if got, want := call.Query.TopK, retrieval.DefaultNumResults; got != want {
		t.Errorf("TopK = %d, want default %d", got, want)
	}
	if call.Query.Filter != nil {
		t.Errorf("Filter = %v, want nil when omitted", call.Query.Filter)
	}
	if got, want := len(call.Vector), testDims; got != want {
		t.Errorf("query vector length = %d, want %d", got, want)
	}
}

// TestRetrieveDocuments_NumResults verifies numResults defaulting and range
// validation.
func TestRetrieveDocuments_NumResults(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantTopK int
		wantErr  bool
	}{
		{name: "omitted defaults to five", args: `{"query":"q"}`, wantTopK: 5},
		{name: "explicit value honored", args: `{"query":"q","numResults":7}`, wantTopK: 7},
		{name: "maximum accepted", args: `{"query":"q","numResults":20}`, wantTopK: 20},
		{name: "negative rejected", args: `{"query":"q","numResults":-1}`, wantErr: true},
		{name: "above maximum rejected", args: `{"query":"q","numResults":21}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &idxmock.Index{}
			svc, _ := newService(t, idx)
			handler := findTool(t, svc, retrieval.ToolRetrieveDocuments).Handler

			_, err := handler(context.Background(), tt.args)
			if tt.wantErr {
				if !errors.Is(err, tools.ErrInvalidInput) {
					t.Fatalf("err = %v, want ErrInvalidInput", err)
				}
				if len(idx.SearchCalls) != 0 {
					t.Errorf("search calls = %d, want 0 after rejection", len(idx.SearchCalls))
				}
				return
			}
			if err != nil {
				t.Fatalf("handler: %v", err)
			}
			if got := idx.SearchCalls[0].Query.TopK; got != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", got, tt.wantTopK)
			}
		})
	}
}

// TestRetrieveDocuments_InvalidInput verifies malformed arguments are
// rejected before any embedding or index traffic.
func TestRetrieveDocuments_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "malformed json", args: `{"query":`},
		{name: "missing query", args: `{}`},
		{name: "blank query", args: `{"query":"   "}`},
		{name: "unknown filter field", args: `{"query":"q","filter":{"color":"red"}}`},
		{name: "unsupported operator", args: `{"query":"q","filter":{"source":{"$gt":3}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &idxmock.Index{}
			svc, provider := newService(t, idx)
			handler := findTool(t, svc, retrieval.ToolRetrieveDocuments).Handler

			_, err := handler(context.Background(), tt.args)
			if !errors.Is(err, tools.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if len(provider.EmbedCalls) != 0 {
				t.Errorf("embed calls = %d, want 0", len(provider.EmbedCalls))
			}
			if len(idx.SearchCalls) != 0 {
				t.Errorf("search calls = %d, want 0", len(idx.SearchCalls))
			}
		})
	}
}

// TestRetrieveDocuments_FilterPassThrough verifies a valid metadata filter
// reaches the index unchanged.
func TestRetrieveDocuments_FilterPassThrough(t *testing.T) {
	idx := &idxmock.Index{}
	svc, _ := newService(t, idx)
	handler := findTool(t, svc, retrieval.ToolRetrieveDocuments).Handler

	_, err := handler(context.Background(), `{"query":"q","filter":{"source":"handbook.pdf","pageNumber":3}}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	got := idx.SearchCalls[0].Query.Filter
	want := index.Filter{"source": "handbook.pdf", "pageNumber": float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Filter = %#v, want %#v", got, want)
	}
}

// TestSearchBySource verifies the source value is matched against both the
// source and documentTitle fields via an $or filter.
func TestSearchBySource(t *testing.T) {
	idx := &idxmock.Index{SearchMatches: sampleMatches()}
	svc, _ := newService(t, idx)
	handler := findTool(t, svc, retrieval.ToolSearchBySource).Handler

	out, err := handler(context.Background(), `{"source":"handbook.pdf","query":"vacation","numResults":3}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var res retrieval.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got, want := res.TotalResults, 2; got != want {
		t.Errorf("TotalResults = %d, want %d", got, want)
	}
	if res.Message != "" {
		t.Errorf("Message = %q, want empty on hits", res.Message)
	}

	call := idx.SearchCalls[0]
	if got, want := call.Query.TopK, 3; got != want {
		t.Errorf("TopK = %d, want %d", got, want)
	}
	wantFilter := index.Filter{
		"$or": []index.Filter{
			{"source": "handbook.pdf"},
			{"documentTitle": "handbook.pdf"},
		},
	}
	if !reflect.DeepEqual(call.Query.Filter, wantFilter) {
		t.Errorf("Filter = %#v, want %#v", call.Query.Filter, wantFilter)
	}
}

// TestSearchBySource_SuggestsClosestSource verifies a miss against a known
// catalog produces a "did you mean" message instead of a bare empty result.
func TestSearchBySource_SuggestsClosestSource(t *testing.T) {
	store := docmem.New()
	ctx := context.Background()
	err := store.Put(ctx, &document.Document{
		ID:       "doc-1",
		Filename: "Employee-Handbook.pdf",
		Metadata: document.Metadata{OriginalName: "Employee-Handbook.pdf", Source: "Employee-Handbook.pdf"},
		Status:   document.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}

	idx := &idxmock.Index{}
	svc, _ := newService(t, idx, retrieval.WithDocstore(store))
	handler := findTool(t, svc, retrieval.ToolSearchBySource).Handler

	out, err := handler(ctx, `{"source":"handbok","query":"vacation"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var res retrieval.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got, want := res.TotalResults, 0; got != want {
		t.Errorf("TotalResults = %d, want %d", got, want)
	}
	if !strings.Contains(res.Message, `Did you mean "Employee-Handbook.pdf"`) {
		t.Errorf("Message = %q, want a did-you-mean suggestion", res.Message)
	}
}

// TestSearchBySource_NoSuggestionWithoutStore verifies a miss without a
// document store still reports a readable not-found message.
func TestSearchBySource_NoSuggestionWithoutStore(t *testing.T) {
	idx := &idxmock.Index{}
	svc, _ := newService(t, idx)
	handler := findTool(t, svc, retrieval.ToolSearchBySource).Handler

	out, err := handler(context.Background(), `{"source":"missing.pdf","query":"anything"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var res retrieval.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !strings.Contains(res.Message, `No documents found for source "missing.pdf"`) {
		t.Errorf("Message = %q, want a not-found notice", res.Message)
	}
	if strings.Contains(res.Message, "Did you mean") {
		t.Errorf("Message = %q, want no suggestion without a store", res.Message)
	}
}

// TestSearchBySource_InvalidInput verifies missing source or query values
// are rejected.
func TestSearchBySource_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "missing source", args: `{"query":"q"}`},
		{name: "blank source", args: `{"source":" ","query":"q"}`},
		{name: "missing query", args: `{"source":"a.pdf"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &idxmock.Index{}
			svc, _ := newService(t, idx)
			handler := findTool(t, svc, retrieval.ToolSearchBySource).Handler

			if _, err := handler(context.Background(), tt.args); !errors.Is(err, tools.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if len(idx.SearchCalls) != 0 {
				t.Errorf("search calls = %d, want 0", len(idx.SearchCalls))
			}
		})
	}
}

// TestKnowledgeBaseInfo verifies index statistics are reported, preferring
// the document store for the document count when one is configured.
func TestKnowledgeBaseInfo(t *testing.T) {
	stats := &index.Stats{TotalVectorCount: 42, IndexFullness: 0.25, Dimension: testDims}

	t.Run("without store", func(t *testing.T) {
		idx := &idxmock.Index{StatsResult: stats}
		svc, _ := newService(t, idx, retrieval.WithIndexName("handbooks"))
		handler := findTool(t, svc, retrieval.ToolKnowledgeBaseInfo).Handler

		out, err := handler(context.Background(), "{}")
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		var info retrieval.Info
		if err := json.Unmarshal([]byte(out), &info); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		if got, want := info.TotalDocuments, 42; got != want {
			t.Errorf("TotalDocuments = %d, want vector count %d", got, want)
		}
		if got, want := info.TotalChunks, 42; got != want {
			t.Errorf("TotalChunks = %d, want %d", got, want)
		}
		if got, want := info.Dimensions, testDims; got != want {
			t.Errorf("Dimensions = %d, want %d", got, want)
		}
		if got, want := info.IndexName, "handbooks"; got != want {
			t.Errorf("IndexName = %q, want %q", got, want)
		}
		if !strings.Contains(info.Message, "handbooks") {
			t.Errorf("Message = %q, want index name mentioned", info.Message)
		}
	})

	t.Run("with store", func(t *testing.T) {
		store := docmem.New()
		ctx := context.Background()
		for _, id := range []string{"doc-1", "doc-2"} {
			doc := &document.Document{ID: id, Filename: id + ".txt", Status: document.StatusCompleted}
			if err := store.Put(ctx, doc); err != nil {
				t.Fatalf("store.Put: %v", err)
			}
		}

		idx := &idxmock.Index{StatsResult: stats}
		svc, _ := newService(t, idx, retrieval.WithDocstore(store))
		handler := findTool(t, svc, retrieval.ToolKnowledgeBaseInfo).Handler

		out, err := handler(ctx, "")
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		var info retrieval.Info
		if err := json.Unmarshal([]byte(out), &info); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		if got, want := info.TotalDocuments, 2; got != want {
			t.Errorf("TotalDocuments = %d, want store count %d", got, want)
		}
		if got, want := info.TotalChunks, 42; got != want {
			t.Errorf("TotalChunks = %d, want %d", got, want)
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		idx := &idxmock.Index{StatsResult: stats}
		svc, _ := newService(t, idx)
		handler := findTool(t, svc, retrieval.ToolKnowledgeBaseInfo).Handler

		if _, err := handler(context.Background(), `{"verbose":true}`); !errors.Is(err, tools.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})
}

// TestRetrieveDocuments_SearchError verifies index failures surface as
// errors rather than empty results.
func TestRetrieveDocuments_SearchError(t *testing.T) {
	idx := &idxmock.Index{SearchErr: index.ErrUnavailable}
	svc, _ := newService(t, idx)
	handler := findTool(t, svc, retrieval.ToolRetrieveDocuments).Handler

	_, err := handler(context.Background(), `{"query":"q"}`)
	if !errors.Is(err, index.ErrUnavailable) {
		t.Fatalf("err = %v, want wrapped ErrUnavailable", err)
	}
}
