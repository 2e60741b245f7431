package index_test

import (
	"encoding/json"
	"testing"

	"github.com/saianfordx/vellum/pkg/index"
)

// testMeta is a representative chunk metadata used across filter tests.
var testMeta = index.Metadata{
	DocumentID:    "doc-1",
	ChunkIndex:    2,
	StartChar:     3000,
	EndChar:       4499,
	PageNumber:    2,
	Source:        "handbook.pdf",
	DocumentTitle: "Employee Handbook",
	Text:          "Vacation accrues at two days per month.",
}

// TestFilter_NilMatchesEverything verifies that nil and empty filters accept
// any metadata.
func TestFilter_NilMatchesEverything(t *testing.T) {
	var nilFilter index.Filter
	if !nilFilter.Matches(testMeta) {
		t.Error("nil filter should match everything")
	}
	if !(index.Filter{}).Matches(testMeta) {
		t.Error("empty filter should match everything")
	}
}

// TestFilter_Equality verifies plain field equality on strings and numbers.
func TestFilter_Equality(t *testing.T) {
	tests := []struct {
		name   string
		filter index.Filter
		want   bool
	}{
		{"source match", index.Filter{"source": "handbook.pdf"}, true},
		{"source mismatch", index.Filter{"source": "other.pdf"}, false},
		{"title match", index.Filter{"documentTitle": "Employee Handbook"}, true},
		{"documentId match", index.Filter{"documentId": "doc-1"}, true},
		{"page as int", index.Filter{"pageNumber": 2}, true},
		{"page as json float", index.Filter{"pageNumber": float64(2)}, true},
		{"page mismatch", index.Filter{"pageNumber": 3}, false},
		{"two fields both match", index.Filter{"source": "handbook.pdf", "pageNumber": 2}, true},
		{"two fields one mismatch", index.Filter{"source": "handbook.pdf", "pageNumber": 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(testMeta); got != tt.want {
				t.Errorf("Matches: got %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFilter_EqOperator verifies the explicit {"$eq": value} wrapper.
func TestFilter_EqOperator(t *testing.T) {
	f := index.Filter{"source": map[string]any{"$eq": "handbook.pdf"}}
	if !f.Matches(testMeta) {
		t.Error("$eq wrapper should match like plain equality")
	}
	f = index.Filter{"source": map[string]any{"$eq": "other.pdf"}}
	if f.Matches(testMeta) {
		t.Error("$eq with a different value should not match")
	}
}

// TestFilter_Or verifies that $or accepts a record when any alternative
// matches and rejects it when none do.
func TestFilter_Or(t *testing.T) {
	match := index.Filter{"$or": []index.Filter{
		{"source": "nope.pdf"},
		{"documentTitle": "Employee Handbook"},
	}}
	if !match.Matches(testMeta) {
		t.Error("$or with one matching alternative should match")
	}

	noMatch := index.Filter{"$or": []index.Filter{
		{"source": "nope.pdf"},
		{"documentTitle": "Nope"},
	}}
	if noMatch.Matches(testMeta) {
		t.Error("$or with no matching alternative should not match")
	}
}

// TestFilter_OrFromJSON verifies that a filter decoded from JSON (alternatives
// as []any of map[string]any) evaluates identically to a hand-built one.
func TestFilter_OrFromJSON(t *testing.T) {
	raw := `{"$or": [{"source": "handbook.pdf"}, {"documentTitle": "handbook.pdf"}]}`
	var f index.Filter
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !f.Matches(testMeta) {
		t.Error("JSON-decoded $or should match on source")
	}
}

// TestFilter_OrCombinesWithEquality verifies that a top-level equality clause
// ANDs with an $or group.
func TestFilter_OrCombinesWithEquality(t *testing.T) {
	f := index.Filter{
		"documentId": "doc-1",
		"$or": []index.Filter{
			{"source": "handbook.pdf"},
			{"documentTitle": "handbook.pdf"},
		},
	}
	if !f.Matches(testMeta) {
		t.Error("equality AND matching $or should match")
	}

	f["documentId"] = "doc-2"
	if f.Matches(testMeta) {
		t.Error("failing equality should reject despite matching $or")
	}
}

// TestFilter_Validate verifies structural validation of field names,
// operators, and $or shapes.
func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  index.Filter
		wantErr bool
	}{
		{"nil", nil, false},
		{"plain equality", index.Filter{"source": "a.pdf"}, false},
		{"eq operator", index.Filter{"pageNumber": map[string]any{"$eq": 3}}, false},
		{"valid or", index.Filter{"$or": []index.Filter{{"source": "a"}}}, false},
		{"unknown field", index.Filter{"speakerId": "x"}, true},
		{"unknown operator", index.Filter{"source": map[string]any{"$gt": "a"}}, true},
		{"empty or", index.Filter{"$or": []index.Filter{}}, true},
		{"or not a list", index.Filter{"$or": "source"}, true},
		{"or with scalar alternative", index.Filter{"$or": []any{"not-an-object"}}, true},
		{"invalid nested alternative", index.Filter{"$or": []index.Filter{{"bogus": 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

// TestFilter_MalformedNeverMatches verifies that structurally invalid filters
// reject all records rather than panicking or matching spuriously.
func TestFilter_MalformedNeverMatches(t *testing.T) {
	bad := index.Filter{"speakerId": "x"}
	if bad.Matches(testMeta) {
		t.Error("filter on unknown field should not match")
	}
	bad = index.Filter{"$or": "not-a-list"}
	if bad.Matches(testMeta) {
		t.Error("malformed $or should not match")
	}
}

// TestFilter_ClausesDeterministicOrder verifies that Clauses returns
// constraints in sorted key order so backends generate stable SQL.
func TestFilter_ClausesDeterministicOrder(t *testing.T) {
	f := index.Filter{
		"source":     "a.pdf",
		"documentId": "doc-1",
		"pageNumber": 1,
	}
	clauses, err := f.Clauses()
	if err != nil {
		t.Fatalf("Clauses: %v", err)
	}
	wantOrder := []string{"documentId", "pageNumber", "source"}
	if len(clauses) != len(wantOrder) {
		t.Fatalf("clause count: got %d, want %d", len(clauses), len(wantOrder))
	}
	for i, want := range wantOrder {
		if clauses[i].Field != want {
			t.Errorf("clause[%d].Field: got %q, want %q", i, clauses[i].Field, want)
		}
	}
}

// TestMetadata_Field verifies the filterable field lookup table.
func TestMetadata_Field(t *testing.T) {
	if v, ok := testMeta.Field("source"); !ok || v != "handbook.pdf" {
		t.Errorf(`Field("source"): got %v, %v`, v, ok)
	}
	if v, ok := testMeta.Field("chunkIndex"); !ok || v != 2 {
		t.Errorf(`Field("chunkIndex"): got %v, %v`, v, ok)
	}
	if _, ok := testMeta.Field("text"); ok {
		t.Error(`Field("text") should not be filterable`)
	}
	if _, ok := testMeta.Field("embedding"); ok {
		t.Error(`Field("embedding") should not be filterable`)
	}
}
