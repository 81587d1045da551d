// Package registry holds the node type definitions a cadence can be built from
// and validates node payloads against each type's JSON schema.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/cadence/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownNodeType is returned for node types that were never registered.
	ErrUnknownNodeType = errors.New("unknown node type")
)

// PayloadError lists the schema violations of a node payload.
type PayloadError struct {
	NodeType models.NodeType
	Problems []string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s node payload: %s", e.NodeType, strings.Join(e.Problems, "; "))
}

type Registry struct {
	logger      *slog.Logger
	definitions map[models.NodeType]*models.NodeTypeDefinition
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:      log,
		definitions: make(map[models.NodeType]*models.NodeTypeDefinition),
	}
}

func (r *Registry) Register(definition *models.NodeTypeDefinition) {
	r.definitions[definition.Type] = definition
}

func (r *Registry) Get(nodeType models.NodeType) (*models.NodeTypeDefinition, bool) {
	definition, ok := r.definitions[nodeType]

	return definition, ok
}

// All returns every registered definition ordered by type.
func (r *Registry) All() []*models.NodeTypeDefinition {
	definitions := make([]*models.NodeTypeDefinition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}

	sort.Slice(definitions, func(i, j int) bool { return definitions[i].Type < definitions[j].Type })

	return definitions
}

// Validate checks data against the schema registered for nodeType.
func (r *Registry) Validate(nodeType models.NodeType, data map[string]any) error {
	definition, ok := r.definitions[nodeType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	if definition.Schema == nil {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(definition.Schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate %s node payload: %w", nodeType, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}

		r.logger.Debug("node payload rejected", "node_type", nodeType, "problems", problems)

		return &PayloadError{NodeType: nodeType, Problems: problems}
	}

	return nil
}
