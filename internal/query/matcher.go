// Package query evaluates queries against local documents. Filters are
// compiled to CEL programs over a "doc" map variable, the same scheme the
// server uses for realtime subscription matching, so client-side results
// agree with the backend.
package query

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/syntrixbase/syntrix-go/pkg/model"
)

var celEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("cel environment: %v", err))
	}
	celEnv = env
}

// Matcher decides membership and ordering of documents for one query.
type Matcher struct {
	query   model.Query
	program cel.Program // nil for document queries and filterless queries
}

// Compile validates the query and compiles its filters.
func Compile(q model.Query) (*Matcher, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	m := &Matcher{query: q}
	if q.IsDocumentQuery() || len(q.Filters) == 0 {
		return m, nil
	}
	prg, err := compileFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	m.program = prg
	return m, nil
}

// Query returns the compiled query.
func (m *Matcher) Query() model.Query { return m.query }

// Matches reports whether doc belongs to the query result. Evaluation
// errors (missing fields, type mismatches) count as no-match, which is
// how the server's subscription matcher treats them.
func (m *Matcher) Matches(doc *model.Document) bool {
	if m.query.IsDocumentQuery() {
		return doc.Key().Path() == m.query.Path
	}
	if doc.Key().Collection() != m.query.Path {
		return false
	}
	if m.program == nil {
		return true
	}
	out, _, err := m.program.Eval(map[string]interface{}{
		"doc": map[string]interface{}(doc.Data()),
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Compare orders two documents for the query.
func (m *Matcher) Compare(a, b *model.Document) int {
	return m.query.Compare(a, b)
}

func compileFilters(filters model.Filters) (cel.Program, error) {
	expressions := make([]string, 0, len(filters))
	for _, f := range filters {
		expr, err := filterToExpression(f)
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, expr)
	}
	full := strings.Join(expressions, " && ")
	ast, issues := celEnv.Compile(full)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}
	return prg, nil
}

// filterToExpression converts a model.Filter to a CEL expression string.
func filterToExpression(f model.Filter) (string, error) {
	valStr, err := formatValue(f.Value)
	if err != nil {
		return "", err
	}

	field := "doc"
	for _, p := range strings.Split(f.Field, ".") {
		field += fmt.Sprintf("['%s']", p)
	}

	switch f.Op {
	case model.OpEq:
		return fmt.Sprintf("%s == %s", field, valStr), nil
	case model.OpNe:
		return fmt.Sprintf("%s != %s", field, valStr), nil
	case model.OpGt:
		return fmt.Sprintf("%s > %s", field, valStr), nil
	case model.OpGte:
		return fmt.Sprintf("%s >= %s", field, valStr), nil
	case model.OpLt:
		return fmt.Sprintf("%s < %s", field, valStr), nil
	case model.OpLte:
		return fmt.Sprintf("%s <= %s", field, valStr), nil
	case model.OpIn:
		return fmt.Sprintf("%s in %s", field, valStr), nil
	case model.OpContains:
		return fmt.Sprintf("%s in %s", valStr, field), nil
	default:
		return "", fmt.Errorf("unsupported operator: %s", f.Op)
	}
}

// formatValue formats a value for use in a CEL expression.
func formatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(val, "'", "\\'")), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int32:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return fmt.Sprintf("%v", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := formatValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ", ")), nil
	default:
		return "", fmt.Errorf("unsupported value type: %T", v)
	}
}
