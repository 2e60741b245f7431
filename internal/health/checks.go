package health

import (
	"context"
	"errors"

	"github.com/saianfordx/vellum/pkg/docstore"
	"github.com/saianfordx/vellum/pkg/index"
	"github.com/saianfordx/vellum/pkg/provider/embeddings"
	"github.com/saianfordx/vellum/pkg/provider/llm"
)

// IndexChecker reports readiness of the vector index by asking it for stats.
// The probe exercises the same connection searches use, so a ready index
// means retrieval can actually run.
func IndexChecker(idx index.Index) Checker {
	return Checker{
		Name: "index",
		Check: func(ctx context.Context) error {
			if idx == nil {
				return errors.New("no index configured")
			}
			_, err := idx.Stats(ctx)
			return err
		},
	}
}

// DocstoreChecker reports readiness of the document store with a list probe.
func DocstoreChecker(store docstore.Store) Checker {
	return Checker{
		Name: "docstore",
		Check: func(ctx context.Context) error {
			if store == nil {
				return errors.New("no document store configured")
			}
			_, err := store.List(ctx)
			return err
		},
	}
}

// ProvidersChecker verifies the model providers the agent depends on are
// wired. The offline simulated providers count as wired; this check guards
// against wiring bugs, not upstream outages, which the circuit breakers
// handle at request time.
func ProvidersChecker(llmProvider llm.Provider, embedder embeddings.Provider) Checker {
	return Checker{
		Name: "providers",
		Check: func(_ context.Context) error {
			if llmProvider == nil {
				return errors.New("no llm provider")
			}
			if embedder == nil {
				return errors.New("no embeddings provider")
			}
			return nil
		},
	}
}
