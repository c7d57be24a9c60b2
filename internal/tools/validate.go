package tools

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// argValidator checks decoded arguments with the resolved schema and, when
// they fail, walks the schema tree to report one FieldError per offending
// field. The library stops at the first violation; the walk re-runs it on
// each property so the model sees every problem in one round trip.
type argValidator struct {
	root *jsonschema.Resolved
	tree *schemaNode // nil when a subschema cannot be resolved on its own
}

type schemaNode struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	props    map[string]*schemaNode
	items    *schemaNode
	extra    *schemaNode
}

func newArgValidator(s *jsonschema.Schema) (*argValidator, error) {
	root, err := s.Resolve(nil)
	if err != nil {
		return nil, err
	}
	return &argValidator{root: root, tree: newSchemaNode(s)}, nil
}

func newSchemaNode(s *jsonschema.Schema) *schemaNode {
	rs, err := s.Resolve(nil)
	if err != nil {
		return nil
	}
	n := &schemaNode{schema: s, resolved: rs}
	for name, prop := range s.Properties {
		child := newSchemaNode(prop)
		if child == nil {
			return nil
		}
		if n.props == nil {
			n.props = make(map[string]*schemaNode, len(s.Properties))
		}
		n.props[name] = child
	}
	if s.Items != nil {
		if n.items = newSchemaNode(s.Items); n.items == nil {
			return nil
		}
	}
	if s.AdditionalProperties != nil && !isFalseSchema(s.AdditionalProperties) {
		if n.extra = newSchemaNode(s.AdditionalProperties); n.extra == nil {
			return nil
		}
	}
	return n
}

// validate returns the violations sorted by path, or nil.
func (v *argValidator) validate(args map[string]any) []FieldError {
	if v == nil {
		return nil
	}
	err := v.root.Validate(args)
	if err == nil {
		return nil
	}
	var errs []FieldError
	if v.tree != nil {
		v.tree.collect(args, "", &errs)
	}
	if len(errs) == 0 {
		return []FieldError{{Message: schemaMessage(err)}}
	}
	slices.SortStableFunc(errs, func(a, b FieldError) int { return strings.Compare(a.Path, b.Path) })
	return errs
}

func (n *schemaNode) collect(v any, path string, errs *[]FieldError) {
	err := n.resolved.Validate(v)
	if err == nil {
		return
	}
	before := len(*errs)
	switch val := v.(type) {
	case map[string]any:
		if !n.isObject() {
			break
		}
		for _, name := range n.schema.Required {
			if _, ok := val[name]; !ok {
				*errs = append(*errs, FieldError{Path: joinPath(path, name), Message: "is required"})
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			switch child, ok := n.props[k]; {
			case ok:
				child.collect(val[k], joinPath(path, k), errs)
			case isFalseSchema(n.schema.AdditionalProperties):
				*errs = append(*errs, FieldError{Path: joinPath(path, k), Message: "unknown property"})
			case n.extra != nil:
				n.extra.collect(val[k], joinPath(path, k), errs)
			}
		}
	case []any:
		if n.items == nil {
			break
		}
		for i, item := range val {
			n.items.collect(item, path+"["+strconv.Itoa(i)+"]", errs)
		}
	}
	if len(*errs) == before {
		*errs = append(*errs, FieldError{Path: path, Message: schemaMessage(err)})
	}
}

func (n *schemaNode) isObject() bool {
	return n.schema.Type == "object" || slices.Contains(n.schema.Types, "object") || len(n.props) > 0
}

// schemaMessage drops the "validating <location>: " prefixes the library
// wraps around each nested violation.
func schemaMessage(err error) string {
	msg := err.Error()
	for strings.HasPrefix(msg, "validating ") {
		i := strings.Index(msg, ": ")
		if i < 0 {
			break
		}
		msg = msg[i+2:]
	}
	return msg
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// isFalseSchema matches the schema jsonschema.For uses to close structs.
func isFalseSchema(s *jsonschema.Schema) bool {
	if s == nil || s.Not == nil {
		return false
	}
	data, err := json.Marshal(s)
	return err == nil && string(data) == "false"
}
