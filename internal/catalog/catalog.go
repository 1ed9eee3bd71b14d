// Package catalog exposes the fixed set of validated, pure read
// operations the oracle is allowed to call. Every function maps
// deterministically onto traversal-engine or store lookups, has no
// side effects, and is idempotent for identical inputs and graph
// state, which makes speculative calls and retries safe.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

// ErrValidation reports arguments that fail schema validation: missing
// required fields, wrong types, out-of-range depth. Nothing is ever
// silently coerced. These errors are fed back to the oracle so it can
// retry with corrected arguments.
var ErrValidation = errors.New("validation error")

// Property describes one parameter in a function schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the JSON-schema-shaped parameter declaration advertised to
// the oracle and enforced before execution.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Function is one catalog entry.
type Function struct {
	Name        string
	Description string
	Schema      Schema

	run func(ctx context.Context, args map[string]any) (any, error)
}

// Catalog is the fixed, enumerable registry of callable operations.
type Catalog struct {
	store  graph.Store
	engine *traverse.Engine
	funcs  []*Function
	byName map[string]*Function
}

// New builds the catalog over a store and traversal engine. The
// function set is assembled here, in one place, and never changes at
// runtime.
func New(store graph.Store, engine *traverse.Engine) *Catalog {
	c := &Catalog{
		store:  store,
		engine: engine,
		byName: make(map[string]*Function),
	}
	for _, fn := range c.buildFunctions() {
		c.funcs = append(c.funcs, fn)
		c.byName[fn.Name] = fn
	}
	return c
}

// Functions returns the catalog entries in registration order.
func (c *Catalog) Functions() []*Function {
	return c.funcs
}

// Execute validates arguments against the function's schema and runs
// it. An unknown name or invalid arguments fail with ErrValidation.
func (c *Catalog) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q: %w", name, ErrValidation)
	}
	if err := validateArgs(fn.Schema, args); err != nil {
		return nil, err
	}
	return fn.run(ctx, args)
}

func validateArgs(schema Schema, args map[string]any) error {
	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("missing required argument %q: %w", required, ErrValidation)
		}
	}
	for key, value := range args {
		prop, ok := schema.Properties[key]
		if !ok {
			return fmt.Errorf("unexpected argument %q: %w", key, ErrValidation)
		}
		switch prop.Type {
		case "string":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("argument %q must be a string: %w", key, ErrValidation)
			}
			if len(prop.Enum) > 0 && !inEnum(prop.Enum, s) {
				return fmt.Errorf("argument %q must be one of %v: %w", key, prop.Enum, ErrValidation)
			}
		case "integer":
			if _, err := intArg(args, key, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func inEnum(enum []string, value string) bool {
	for _, candidate := range enum {
		if candidate == value {
			return true
		}
	}
	return false
}

// stringArg returns a required, validated string argument.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg extracts an integer argument. JSON numbers decode to float64;
// a fractional value is a type error, not something to round.
func intArg(args map[string]any, key string, fallback int) (int, error) {
	value, ok := args[key]
	if !ok {
		return fallback, nil
	}
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("argument %q must be an integer: %w", key, ErrValidation)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer: %w", key, ErrValidation)
	}
}

// depthArg resolves the optional max_depth argument, enforcing the
// traversal bounds at validation time.
func depthArg(args map[string]any) (int, error) {
	depth, err := intArg(args, "max_depth", traverse.DefaultMaxDepth)
	if err != nil {
		return 0, err
	}
	if depth <= 0 || depth > traverse.MaxDepthCeiling {
		return 0, fmt.Errorf("max_depth must be between 1 and %d, got %d: %w",
			traverse.MaxDepthCeiling, depth, ErrValidation)
	}
	return depth, nil
}
