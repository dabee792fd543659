package graph

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

// fieldResolver computes a field that is not read straight off its parent's struct.
// obj is the parent value (nil for root fields); args are the field's coerced arguments.
type fieldResolver func(ctx context.Context, obj interface{}, args map[string]interface{}) (interface{}, error)

type executableSchema struct {
	resolvers map[string]map[string]fieldResolver
}

// NewExecutableSchema binds the embedded schema to r. Fields without a resolver read the parent
// struct field whose json tag is the snake_case form of the GraphQL name.
func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolvers: r.fieldResolvers()}
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, fieldName string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	var root string
	switch opCtx.Operation.Operation {
	case ast.Query:
		root = "Query"
	case ast.Mutation:
		root = "Mutation"
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		ex := &execution{schema: e, opCtx: opCtx}
		data := ex.rootObject(ctx, root)
		var buf bytes.Buffer
		data.MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

type execution struct {
	schema *executableSchema
	opCtx  *graphql.OperationContext
}

// rootObject resolves root fields one after another, which mutations require.
func (ex *execution) rootObject(ctx context.Context, root string) graphql.Marshaler {
	fields := graphql.CollectFields(ex.opCtx, ex.opCtx.Operation.SelectionSet, []string{root})
	out := &object{}
	for _, field := range fields {
		if field.Name == "__typename" {
			out.add(field.Alias, graphql.MarshalString(root))
			continue
		}
		out.add(field.Alias, ex.field(ctx, root, reflect.Value{}, field))
	}
	return out
}

func (ex *execution) object(ctx context.Context, typeName string, obj reflect.Value, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ex.opCtx, sel, []string{typeName})
	out := &object{}
	for _, field := range fields {
		if field.Name == "__typename" {
			out.add(field.Alias, graphql.MarshalString(typeName))
			continue
		}
		out.add(field.Alias, ex.field(ctx, typeName, obj, field))
	}
	return out
}

func (ex *execution) field(ctx context.Context, typeName string, obj reflect.Value, field graphql.CollectedField) graphql.Marshaler {
	if field.Definition == nil {
		return graphql.Null
	}
	resolve, ok := ex.schema.resolvers[typeName][field.Name]
	if !ok {
		ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{Object: typeName, Field: field})
		return ex.value(ctx, field.Definition.Type, structField(obj, field.Name), field.Selections)
	}

	fc := &graphql.FieldContext{
		Object:     typeName,
		Field:      field,
		Args:       field.ArgumentMap(ex.opCtx.Variables),
		IsMethod:   true,
		IsResolver: true,
	}
	ctx = graphql.WithFieldContext(ctx, fc)
	var parent interface{}
	if obj.IsValid() {
		parent = obj.Interface()
	}
	res, err := ex.opCtx.ResolverMiddleware(ctx, func(rctx context.Context) (interface{}, error) {
		return resolve(rctx, parent, fc.Args)
	})
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	fc.Result = res
	return ex.value(ctx, field.Definition.Type, reflect.ValueOf(res), field.Selections)
}

// value marshals v as the schema type t.
func (ex *execution) value(ctx context.Context, t *ast.Type, v reflect.Value, sel ast.SelectionSet) graphql.Marshaler {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return graphql.Null
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return graphql.Null
	}
	if t.Elem != nil {
		return ex.list(ctx, t.Elem, v, sel)
	}

	def := parsedSchema.Types[t.NamedType]
	if def != nil && def.Kind == ast.Object {
		return ex.object(ctx, t.NamedType, v, sel)
	}
	return scalar(v)
}

// list resolves elements concurrently so that loader lookups of sibling rows share one batch.
func (ex *execution) list(ctx context.Context, elem *ast.Type, v reflect.Value, sel ast.SelectionSet) graphql.Marshaler {
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return graphql.Null
	}
	items := make(graphql.Array, v.Len())
	var wg sync.WaitGroup
	for i := 0; i < v.Len(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := v.Index(i)
			fc := &graphql.FieldContext{Index: &i, Result: item.Interface()}
			ictx := graphql.WithFieldContext(ctx, fc)
			defer func() {
				if r := recover(); r != nil {
					graphql.AddError(ictx, ex.opCtx.Recover(ictx, r))
					items[i] = graphql.Null
				}
			}()
			items[i] = ex.value(ictx, elem, item, sel)
		}(i)
	}
	wg.Wait()
	return items
}

func scalar(v reflect.Value) graphql.Marshaler {
	switch x := v.Interface().(type) {
	case decimal.Decimal:
		return MarshalDecimal(x)
	case decimal.NullDecimal:
		if !x.Valid {
			return graphql.Null
		}
		return MarshalDecimal(x.Decimal)
	case time.Time:
		return graphql.MarshalTime(x)
	}
	switch v.Kind() {
	case reflect.String:
		return graphql.MarshalString(v.String())
	case reflect.Bool:
		return graphql.MarshalBoolean(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return graphql.MarshalInt64(v.Int())
	case reflect.Float32, reflect.Float64:
		return graphql.MarshalFloat(v.Float())
	}
	return graphql.Null
}

var (
	jsonFieldsMu sync.RWMutex
	jsonFields   = map[reflect.Type]map[string][]int{}
)

// structField finds the field of obj tagged json:"<snake_case(name)>", or json:"<name>" for the
// camelCase page types. Promoted fields are included.
func structField(obj reflect.Value, name string) reflect.Value {
	for obj.IsValid() && (obj.Kind() == reflect.Pointer || obj.Kind() == reflect.Interface) {
		if obj.IsNil() {
			return reflect.Value{}
		}
		obj = obj.Elem()
	}
	if !obj.IsValid() || obj.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	fields := jsonIndex(obj.Type())
	index, ok := fields[snakeCase(name)]
	if !ok {
		if index, ok = fields[name]; !ok {
			return reflect.Value{}
		}
	}
	return obj.FieldByIndex(index)
}

func jsonIndex(t reflect.Type) map[string][]int {
	jsonFieldsMu.RLock()
	index, ok := jsonFields[t]
	jsonFieldsMu.RUnlock()
	if ok {
		return index
	}
	index = make(map[string][]int)
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = snakeCase(f.Name)
		}
		if _, dup := index[tag]; !dup || len(f.Index) == 1 {
			index[tag] = f.Index
		}
	}
	jsonFieldsMu.Lock()
	jsonFields[t] = index
	jsonFieldsMu.Unlock()
	return index
}

// snakeCase maps a GraphQL field name to the json tag style used by models: qtyDelta -> qty_delta.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// object keeps selection order in the response.
type object struct {
	keys   []string
	values []graphql.Marshaler
}

func (o *object) add(key string, v graphql.Marshaler) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, v)
}

func (o *object) MarshalGQL(w io.Writer) {
	io.WriteString(w, "{")
	for i, key := range o.keys {
		if i > 0 {
			io.WriteString(w, ",")
		}
		graphql.MarshalString(key).MarshalGQL(w)
		io.WriteString(w, ":")
		o.values[i].MarshalGQL(w)
	}
	io.WriteString(w, "}")
}
