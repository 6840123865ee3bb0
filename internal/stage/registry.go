package stage

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/clsprep/internal/config"
	"github.com/nao1215/clsprep/internal/dataset"
)

// Registry maps every dataset identifier to its processor.
// It is built once and read-only afterwards.
type Registry struct {
	processors map[dataset.ID]Processor
}

// NewRegistry builds a registry from bindings. Every identifier returned by
// dataset.All must be bound, so a dataset added to the enumeration without a
// processor fails at startup rather than mid-run.
func NewRegistry(bindings map[dataset.ID]Processor) (*Registry, error) {
	processors := make(map[dataset.ID]Processor, len(bindings))
	for _, id := range dataset.All() {
		p, ok := bindings[id]
		if !ok || p == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingProcessor, id)
		}
		processors[id] = p
	}
	for id := range bindings {
		if _, err := dataset.Parse(string(id)); err != nil {
			return nil, fmt.Errorf("invalid binding: %w", err)
		}
	}
	return &Registry{processors: processors}, nil
}

// Lookup returns the processor bound to id.
// A dataset bound to Unconfigured fails with ErrNotConfigured.
func (r *Registry) Lookup(id dataset.ID) (Processor, error) {
	p, ok := r.processors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingProcessor, id)
	}
	if u, ok := p.(Unconfigured); ok {
		return nil, u.Err()
	}
	return p, nil
}

// FromSettings builds the standard registry: the synthetic dataset uses the
// built-in SyntheticProcessor, every other dataset runs the external commands
// configured in s, or Unconfigured when there are none. opts are applied to
// every CommandProcessor after the logger.
func FromSettings(s *config.Settings, logger *slog.Logger, opts ...CommandOption) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bindings := make(map[dataset.ID]Processor, len(dataset.All()))
	for _, id := range dataset.All() {
		if id == dataset.Synthetic {
			bindings[id] = NewSyntheticProcessor(
				WithSyntheticCases(s.Synthetic.Cases),
				WithSyntheticSize(s.Synthetic.Width, s.Synthetic.Height),
				WithSyntheticLogger(logger),
			)
			continue
		}

		ps, ok := s.Processor(id)
		if !ok {
			bindings[id] = Unconfigured{Dataset: id}
			continue
		}
		if missing := ps.MissingStage(); missing != "" {
			logger.Warn("processor entry is incomplete, dataset cannot be prepared",
				"dataset", id,
				"missing", missing,
			)
			bindings[id] = Unconfigured{Dataset: id, Missing: missing}
			continue
		}

		p, err := NewCommandProcessor(id, ps, append([]CommandOption{WithCommandLogger(logger)}, opts...)...)
		if err != nil {
			return nil, err
		}
		bindings[id] = p
	}

	return NewRegistry(bindings)
}
