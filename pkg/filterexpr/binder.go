package filterexpr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Msg wraps request DTOs that expose filter and order_by raw inputs.
type Msg interface {
	GetFilter() string
	GetOrderBy() string
}

// Op represents a supported comparison operation.
type Op string

const (
	OpEQ Op = "=="
	OpSW Op = "startsWith"
	OpIN Op = "in"
)

// FilterField maps the operations allowed on a filter field to params struct field names.
type FilterField struct {
	Ops map[Op]string
}

// OrderField maps an order key to a SQL expression.
type OrderField struct {
	Expr string
}

// OrderSchema describes ordering defaults and whitelisted keys.
type OrderSchema struct {
	DefaultPrimary     string
	DefaultPrimaryDesc bool
	FallbackKey        string
	FallbackDesc       bool
	Fields             map[string]OrderField
}

// ResourceSchema aggregates filtering and ordering rules for a resource.
type ResourceSchema struct {
	Filter map[string]FilterField
	Order  OrderSchema
}

// Bind parses the request filter & order_by and populates the query params struct accordingly.
// Filters are conjunctions of string comparisons: `field == 'x'`, `field.startsWith('x')`,
// `field in ['x', 'y']`.
func Bind[M Msg, P any](msg M, binding *P, schema ResourceSchema) error {
	if binding == nil {
		return errors.New("binding must not be nil")
	}

	if err := bindFilterTo(binding, msg.GetFilter(), schema.Filter); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	order, err := parseOrderBy(msg.GetOrderBy(), schema.Order)
	if err != nil {
		return fmt.Errorf("order_by: %w", err)
	}

	return setOrderParams(binding, order)
}

type predicate struct {
	Field string
	Op    Op
	Value any
}

func bindFilterTo(binding any, filter string, fields map[string]FilterField) error {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil
	}
	if len(fields) == 0 {
		return errors.New("filter schema has no fields defined")
	}

	opts := make([]cel.EnvOption, 0, len(fields))
	for name := range fields {
		opts = append(opts, cel.Variable(name, cel.StringType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return err
	}

	ast, issues := env.Parse(filter)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid filter: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return fmt.Errorf("failed to convert AST: %w", err)
	}

	dest := reflect.ValueOf(binding)
	if dest.Kind() != reflect.Ptr || dest.IsNil() || dest.Elem().Kind() != reflect.Struct {
		return errors.New("binding must be a non-nil pointer to a struct")
	}
	dest = dest.Elem()

	conjuncts, err := flattenAnd(parsed.GetExpr())
	if err != nil {
		return err
	}
	for _, expr := range conjuncts {
		pred, err := parsePredicate(expr)
		if err != nil {
			return err
		}
		rule, ok := fields[pred.Field]
		if !ok {
			return fmt.Errorf("field %q is not allowed", pred.Field)
		}
		target, ok := rule.Ops[pred.Op]
		if !ok {
			return fmt.Errorf("operator %q is not allowed for field %q", string(pred.Op), pred.Field)
		}
		field := dest.FieldByName(target)
		if !field.IsValid() || !field.CanSet() {
			return fmt.Errorf("params struct %s has no settable field %q", dest.Type(), target)
		}
		if err := assign(field, pred.Value); err != nil {
			return fmt.Errorf("field %q: %w", pred.Field, err)
		}
	}
	return nil
}

// flattenAnd splits nested && chains; any other logical operator is rejected.
func flattenAnd(expr *exprpb.Expr) ([]*exprpb.Expr, error) {
	if expr == nil {
		return nil, errors.New("empty expression")
	}
	call := expr.GetCallExpr()
	if call == nil {
		return []*exprpb.Expr{expr}, nil
	}
	switch call.Function {
	case "_&&_":
		var out []*exprpb.Expr
		for _, arg := range call.Args {
			parts, err := flattenAnd(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, parts...)
		}
		return out, nil
	case "_||_", "_?_:_", "!_":
		return nil, fmt.Errorf("logical operator %q is not supported; only AND is allowed", call.Function)
	default:
		return []*exprpb.Expr{expr}, nil
	}
}

func parsePredicate(expr *exprpb.Expr) (predicate, error) {
	call := expr.GetCallExpr()
	if call == nil {
		return predicate{}, errors.New("unsupported expression; expected comparison or function call")
	}

	var (
		op          Op
		fieldExpr   *exprpb.Expr
		literalExpr *exprpb.Expr
	)
	switch call.Function {
	case "_==_":
		if call.Target != nil || len(call.Args) != 2 {
			return predicate{}, errors.New("== expects two operands")
		}
		op, fieldExpr, literalExpr = OpEQ, call.Args[0], call.Args[1]
	case "@in", "_in_":
		if len(call.Args) != 2 {
			return predicate{}, errors.New("in expects two operands")
		}
		op, fieldExpr, literalExpr = OpIN, call.Args[0], call.Args[1]
	case "startsWith":
		if call.Target == nil || len(call.Args) != 1 {
			return predicate{}, errors.New("startsWith must be called on a field with one argument")
		}
		op, fieldExpr, literalExpr = OpSW, call.Target, call.Args[0]
	default:
		return predicate{}, fmt.Errorf("function %q is not supported", call.Function)
	}

	ident := fieldExpr.GetIdentExpr()
	if ident == nil {
		return predicate{}, errors.New("left-hand side must be an identifier")
	}
	value, err := parseLiteral(literalExpr, op == OpIN)
	if err != nil {
		return predicate{}, err
	}
	return predicate{Field: ident.GetName(), Op: op, Value: value}, nil
}

func parseLiteral(expr *exprpb.Expr, wantList bool) (any, error) {
	if wantList {
		list := expr.GetListExpr()
		if list == nil {
			return nil, errors.New("in requires a list literal")
		}
		values := make([]string, 0, len(list.GetElements()))
		for i, elem := range list.GetElements() {
			c := elem.GetConstExpr()
			if c == nil {
				return nil, fmt.Errorf("list literal element %d is not a constant", i)
			}
			s, ok := c.ConstantKind.(*exprpb.Constant_StringValue)
			if !ok || s.StringValue == "" {
				return nil, errors.New("list literal elements must be non-empty strings")
			}
			values = append(values, s.StringValue)
		}
		if len(values) == 0 {
			return nil, errors.New("list literal must not be empty")
		}
		return values, nil
	}

	c := expr.GetConstExpr()
	if c == nil {
		return nil, errors.New("right-hand side must be a literal")
	}
	s, ok := c.ConstantKind.(*exprpb.Constant_StringValue)
	if !ok {
		return nil, fmt.Errorf("expected string literal, got %T", c.ConstantKind)
	}
	return s.StringValue, nil
}

func assign(field reflect.Value, value any) error {
	switch v := value.(type) {
	case string:
		if field.Kind() != reflect.String {
			return fmt.Errorf("expected string destination, got %s", field.Kind())
		}
		field.SetString(v)
	case []string:
		if field.Kind() != reflect.Slice || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("expected []string destination, got %s", field.Type())
		}
		field.Set(reflect.ValueOf(append([]string(nil), v...)).Convert(field.Type()))
	default:
		return fmt.Errorf("unsupported literal type %T", value)
	}
	return nil
}
