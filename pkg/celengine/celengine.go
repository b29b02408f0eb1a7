package celengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	envCache     sync.Map
	programCache sync.Map
)

// signature identifies the variable names and CEL types of attrs.
func signature(attrs map[string]any) string {
	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		keys = append(keys, k+":"+typeOf(v).String())
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func typeOf(val any) *cel.Type {
	switch v := val.(type) {
	case string:
		return cel.StringType
	case int, int32, int64, float32, float64:
		return cel.DoubleType
	case bool:
		return cel.BoolType
	case []any:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]any); ok {
				return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
			}
		}
		return cel.ListType(cel.DynType)
	case []map[string]any:
		return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
	case map[string]any:
		return cel.MapType(cel.StringType, cel.DynType)
	default:
		return cel.DynType
	}
}

// normalize converts every number to float64 so expressions can mix 10 and 10.5.
func normalize(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int32:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		case float32:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}

func GetOrBuildEnv(attrs map[string]any) (*cel.Env, error) {
	key := signature(attrs)
	if v, ok := envCache.Load(key); ok {
		return v.(*cel.Env), nil
	}

	vars := make([]cel.EnvOption, 0, len(attrs))
	for name, val := range attrs {
		vars = append(vars, cel.Variable(name, typeOf(val)))
	}

	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, err
	}

	envCache.Store(key, env)
	return env, nil
}

func program(expr string, attrs map[string]any) (cel.Program, error) {
	key := signature(attrs) + "|" + expr
	if v, ok := programCache.Load(key); ok {
		return v.(cel.Program), nil
	}

	env, err := GetOrBuildEnv(attrs)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	programCache.Store(key, prg)
	return prg, nil
}

// ValidateExpression compiles expr against the variables in attrs.
func ValidateExpression(expr string, attrs map[string]any) error {
	_, err := program(expr, normalize(attrs))
	return err
}

// Evaluate runs a boolean expression.
func Evaluate(expr string, attrs map[string]any) (bool, error) {
	out, err := EvaluateDynamic(expr, attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out, out)
	}
	return b, nil
}

func EvaluateDynamic(expr string, attrs map[string]any) (any, error) {
	attrs = normalize(attrs)

	prg, err := program(expr, attrs)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return nil, err
	}

	return out.Value(), nil
}
