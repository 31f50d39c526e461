// Command gen writes an OpenAPI document for the handlers registered with
// server.AddHandler.
//
// It loads the packages matching -pattern, finds every server.AddHandler call
// whose handler is a function literal and derives:
//   - parameters and request body from the `var req struct{...}` passed to server.ParseRequest
//   - responses from the server.WriteJSON and server.WriteError calls
//   - summary and description from the comment right above the call
//
// Comment lines starting with "gen:" are directives and never end up in the
// description:
//
//	gen:tag=Books   groups the operation under the Books tag
//	gen:ignore      leaves the handler out of the document
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"log"
	"net/http"
	"os"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/tools/go/packages"
	"gopkg.in/yaml.v3"
)

const serverPackagePath = "github.com/SeaRoll/bookshelf/server"

var (
	pattern     = flag.String("pattern", "./...", "Packages to scan for server.AddHandler calls")
	output      = flag.String("output", "openapi.yaml", "Output file for the OpenAPI specification")
	title       = flag.String("title", "API Documentation", "Title of the OpenAPI spec")
	version     = flag.String("version", "1.0.0", "Version of the API")
	description = flag.String("description", "API generated from server.AddHandler calls", "Description of the API")
	servers     = flag.String("servers", "", "Comma separated server URLs")
)

func main() {
	flag.Parse()

	log.Printf("Generating OpenAPI spec for package(s) matching: %s\n", *pattern)
	yamlBytes, err := Generate(*pattern, Options{
		Title:       *title,
		Version:     *version,
		Description: *description,
		Servers:     splitServers(*servers),
	})
	if err != nil {
		log.Fatalf("Error generating OpenAPI spec: %v", err)
	}

	if err := os.WriteFile(*output, yamlBytes, 0o644); err != nil {
		log.Fatalf("Error writing to output file %s: %v", *output, err)
	}
	log.Printf("Successfully wrote OpenAPI spec to %s\n", *output)
}

// Options describe the document itself.
type Options struct {
	Title       string
	Version     string
	Description string
	Servers     []string
}

// Schemas for well known named types that have a string representation on the wire.
var customTypeSchemas = map[string]*openapi3.Schema{
	"UUID":       {Type: &openapi3.Types{"string"}, Format: "uuid", Description: "UUID formatted string"},
	"Time":       {Type: &openapi3.Types{"string"}, Format: "date-time", Description: "RFC3339 formatted date-time string"},
	"RawMessage": {Type: &openapi3.Types{"object"}, Description: "Represents any valid JSON object."},
}

var httpStatusMap = map[string]int{
	"StatusOK":                  http.StatusOK,
	"StatusCreated":             http.StatusCreated,
	"StatusAccepted":            http.StatusAccepted,
	"StatusNoContent":           http.StatusNoContent,
	"StatusBadRequest":          http.StatusBadRequest,
	"StatusUnauthorized":        http.StatusUnauthorized,
	"StatusForbidden":           http.StatusForbidden,
	"StatusNotFound":            http.StatusNotFound,
	"StatusConflict":            http.StatusConflict,
	"StatusUnprocessableEntity": http.StatusUnprocessableEntity,
	"StatusTooManyRequests":     http.StatusTooManyRequests,
	"StatusInternalServerError": http.StatusInternalServerError,
	"StatusServiceUnavailable":  http.StatusServiceUnavailable,
}

// handlerDoc is what the comment above a server.AddHandler call says about it.
type handlerDoc struct {
	summary     string
	description string
	tag         string
	ignore      bool
}

type schemaGenerator struct {
	typesInfo      *types.Info
	fset           *token.FileSet
	openAPISpec    *openapi3.T
	generatedTypes map[string]*openapi3.SchemaRef
	usedTags       map[string]bool
	handlersFound  int
}

// Generate scans the packages matching pattern and returns the OpenAPI document as YAML.
func Generate(pattern string, opts Options) ([]byte, error) {
	fset := token.NewFileSet()
	pkgs, err := packages.Load(&packages.Config{
		Fset: fset,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
	}, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("packages contain errors")
	}

	gen := newSchemaGenerator(fset, opts)

	for _, pkg := range pkgs {
		gen.typesInfo = pkg.TypesInfo
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok || !gen.isServerCall(call, "AddHandler") || len(call.Args) != 2 {
					return true
				}

				if gen.processAddHandler(call, file.Comments) {
					log.Printf("Found server.AddHandler call in %s", fset.Position(call.Pos()))
					gen.handlersFound++
				}
				return true
			})
		}
	}

	if gen.handlersFound == 0 {
		log.Println("Warning: No 'server.AddHandler' calls were found.")
	}

	tags := make([]string, 0, len(gen.usedTags))
	for tag := range gen.usedTags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		gen.openAPISpec.Tags = append(gen.openAPISpec.Tags, &openapi3.Tag{
			Name:        tag,
			Description: fmt.Sprintf("Operations related to %s", tag),
		})
	}

	return yaml.Marshal(gen.openAPISpec)
}

func newSchemaGenerator(fset *token.FileSet, opts Options) *schemaGenerator {
	spec := &openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:       opts.Title,
			Version:     opts.Version,
			Description: opts.Description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range opts.Servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	// Mirrors server.ErrorResponse.
	spec.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: openapi3.NewObjectSchema().
			WithProperty("detail", &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "Error message"}).
			WithRequired([]string{"detail"}),
	}

	return &schemaGenerator{
		fset:           fset,
		openAPISpec:    spec,
		generatedTypes: make(map[string]*openapi3.SchemaRef),
		usedTags:       make(map[string]bool),
	}
}

// isServerCall reports whether call invokes the function name of the server package.
// The callee is resolved through type information so renamed imports are recognised.
func (g *schemaGenerator) isServerCall(call *ast.CallExpr, name string) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != name {
		return false
	}

	fn, ok := g.typesInfo.Uses[sel.Sel].(*types.Func)
	if !ok {
		return false
	}

	return fn.Pkg() != nil && fn.Pkg().Path() == serverPackagePath
}

// processAddHandler adds the operation registered by call. It returns false
// when the call is skipped.
func (g *schemaGenerator) processAddHandler(call *ast.CallExpr, comments []*ast.CommentGroup) bool {
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return false
	}
	route, err := strconv.Unquote(lit.Value)
	if err != nil {
		return false
	}
	method, path, ok := splitRoute(route)
	if !ok {
		log.Printf("Skipping route %q without a method", route)
		return false
	}

	handlerFunc, ok := call.Args[1].(*ast.FuncLit)
	if !ok {
		return false
	}

	doc := parseHandlerDoc(g.commentAbove(call, comments))
	if doc.ignore {
		return false
	}
	if doc.tag == "" {
		doc.tag = generateTagFromPath(path)
	}
	if doc.summary == "" {
		doc.summary = path
	}

	reqStruct, responses := g.findRequestAndResponseTypes(handlerFunc)

	op := &openapi3.Operation{
		Summary:     doc.summary,
		Description: doc.description,
		OperationID: generateOperationID(method, path),
		Tags:        []string{doc.tag},
	}
	g.usedTags[doc.tag] = true

	if reqStruct != nil {
		op.Parameters, op.RequestBody = g.extractRequestInfo(reqStruct)
	}

	// Without options kin-openapi adds an empty "default" response.
	var statuses []openapi3.NewResponsesOption
	for statusCode, respType := range responses {
		desc := http.StatusText(statusCode)
		if desc == "" {
			desc = "Response"
		}

		response := openapi3.NewResponse().WithDescription(desc)
		switch {
		case statusCode >= http.StatusBadRequest:
			response = response.WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil))
		case respType != nil:
			response = response.WithJSONSchemaRef(g.goTypeToSchemaRef(respType))
		}
		statuses = append(statuses, openapi3.WithStatus(statusCode, &openapi3.ResponseRef{Value: response}))
	}
	op.Responses = openapi3.NewResponses(statuses...)

	g.openAPISpec.AddOperation(path, method, op)
	return true
}

// commentAbove returns the comment group that ends on the line just before node.
func (g *schemaGenerator) commentAbove(node ast.Node, comments []*ast.CommentGroup) string {
	line := g.fset.Position(node.Pos()).Line
	for _, cg := range comments {
		if g.fset.Position(cg.End()).Line == line-1 {
			return cg.Text()
		}
	}
	return ""
}

// findRequestAndResponseTypes inspects a handler body for its request struct and the
// status codes it writes.
func (g *schemaGenerator) findRequestAndResponseTypes(fn *ast.FuncLit) (*types.Struct, map[int]types.Type) {
	var reqStruct *types.Struct
	responses := make(map[int]types.Type)

	if fn.Body == nil {
		return nil, responses
	}

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if decl, ok := n.(*ast.GenDecl); ok && decl.Tok == token.VAR && reqStruct == nil {
			for _, spec := range decl.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok || vs.Type == nil || len(vs.Names) == 0 || vs.Names[0].Name != "req" {
					continue
				}
				if t, ok := g.typesInfo.TypeOf(vs.Type).Underlying().(*types.Struct); ok {
					reqStruct = t
				}
			}
			return true
		}

		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) < 2 {
			return true
		}

		isWriteJSON := g.isServerCall(call, "WriteJSON")
		if !isWriteJSON && !g.isServerCall(call, "WriteError") {
			return true
		}

		statusCode, resolved := resolveStatusCode(call.Args[1])
		if !resolved {
			return true
		}

		var respType types.Type
		if isWriteJSON && len(call.Args) > 2 {
			respType = g.typesInfo.TypeOf(call.Args[2])
			if basic, ok := respType.(*types.Basic); ok && basic.Kind() == types.UntypedNil {
				respType = nil
			}
		}
		responses[statusCode] = respType

		return true
	})

	return reqStruct, responses
}

// resolveStatusCode turns a literal or http.StatusXxx expression into its code.
func resolveStatusCode(arg ast.Expr) (int, bool) {
	switch expr := arg.(type) {
	case *ast.BasicLit:
		if expr.Kind == token.INT {
			code, err := strconv.Atoi(expr.Value)
			if err == nil {
				return code, true
			}
		}
	case *ast.SelectorExpr:
		if ident, ok := expr.X.(*ast.Ident); ok && ident.Name == "http" {
			if code, ok := httpStatusMap[expr.Sel.Name]; ok {
				return code, true
			}
		}
	}
	return 0, false
}

// extractRequestInfo maps the tagged fields of the request struct to parameters and a body.
func (g *schemaGenerator) extractRequestInfo(reqStruct *types.Struct) (openapi3.Parameters, *openapi3.RequestBodyRef) {
	params := openapi3.NewParameters()
	var requestBody *openapi3.RequestBodyRef

	var walk func(s *types.Struct)
	walk = func(s *types.Struct) {
		for i := range s.NumFields() {
			field := s.Field(i)
			st := reflect.StructTag(s.Tag(i))

			if field.Embedded() {
				if embedded, ok := field.Type().Underlying().(*types.Struct); ok {
					walk(embedded)
				}
				continue
			}

			isRequired := slices.Contains(strings.Split(st.Get("validate"), ","), "required")
			_, isPointer := field.Type().(*types.Pointer)

			if name, ok := st.Lookup("path"); ok {
				p := openapi3.NewPathParameter(name)
				p.Schema = g.goTypeToSchemaRef(field.Type())
				params = append(params, &openapi3.ParameterRef{Value: p})
				continue
			}

			if name, ok := st.Lookup("query"); ok {
				p := openapi3.NewQueryParameter(name)
				p.Schema = g.goTypeToSchemaRef(field.Type())
				p.Required = isRequired
				params = append(params, &openapi3.ParameterRef{Value: p})
				continue
			}

			if name, ok := st.Lookup("header"); ok {
				p := openapi3.NewHeaderParameter(name)
				p.Schema = g.goTypeToSchemaRef(field.Type())
				p.Required = isRequired
				params = append(params, &openapi3.ParameterRef{Value: p})
				continue
			}

			if _, ok := st.Lookup("body"); ok {
				reqBody := openapi3.NewRequestBody().
					WithJSONSchemaRef(g.goTypeToSchemaRef(field.Type())).
					WithRequired(!isPointer)
				requestBody = &openapi3.RequestBodyRef{Value: reqBody}
			}
		}
	}

	walk(reqStruct)
	return params, requestBody
}

// goTypeToSchemaRef converts a Go type into a schema. Named types become components.
func (g *schemaGenerator) goTypeToSchemaRef(typ types.Type) *openapi3.SchemaRef {
	if typ == nil {
		return nil
	}

	if ptr, ok := typ.(*types.Pointer); ok {
		return g.goTypeToSchemaRef(ptr.Elem())
	}

	if named, ok := typ.(*types.Named); ok {
		typeName := named.Obj().Name()
		if schema, ok := customTypeSchemas[typeName]; ok {
			return &openapi3.SchemaRef{Value: schema}
		}
		if _, isStruct := named.Underlying().(*types.Struct); isStruct {
			if ref, ok := g.generatedTypes[typeName]; ok {
				return ref
			}
			ref := openapi3.NewSchemaRef("#/components/schemas/"+typeName, nil)
			g.generatedTypes[typeName] = ref
			g.openAPISpec.Components.Schemas[typeName] = g.goTypeToSchemaRef(named.Underlying())
			return ref
		}
		return g.goTypeToSchemaRef(named.Underlying())
	}

	schema := openapi3.NewSchema()
	switch t := typ.Underlying().(type) {
	case *types.Basic:
		switch {
		case t.Info()&types.IsString != 0:
			schema.Type = &openapi3.Types{"string"}
		case t.Info()&types.IsInteger != 0:
			schema.Type = &openapi3.Types{"integer"}
			if t.Kind() == types.Int64 || t.Kind() == types.Uint64 {
				schema.Format = "int64"
			}
		case t.Info()&types.IsFloat != 0:
			schema.Type = &openapi3.Types{"number"}
		case t.Info()&types.IsBoolean != 0:
			schema.Type = &openapi3.Types{"boolean"}
		}
	case *types.Struct:
		schema.Type = &openapi3.Types{"object"}
		schema.Properties = make(openapi3.Schemas)

		for i := range t.NumFields() {
			field := t.Field(i)
			if !field.Exported() {
				continue
			}
			jsonName := strings.Split(reflect.StructTag(t.Tag(i)).Get("json"), ",")[0]
			if jsonName == "" || jsonName == "-" {
				continue
			}
			if _, isPointer := field.Type().(*types.Pointer); !isPointer {
				schema.Required = append(schema.Required, jsonName)
			}
			schema.Properties[jsonName] = g.goTypeToSchemaRef(field.Type())
		}
	case *types.Slice:
		schema.Type = &openapi3.Types{"array"}
		schema.Items = g.goTypeToSchemaRef(t.Elem())
	case *types.Map:
		schema.Type = &openapi3.Types{"object"}
		schema.AdditionalProperties = openapi3.AdditionalProperties{Schema: g.goTypeToSchemaRef(t.Elem())}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// parseHandlerDoc splits a handler comment into summary, description and gen: directives.
func parseHandlerDoc(text string) handlerDoc {
	var doc handlerDoc
	var body []string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		directive, isDirective := strings.CutPrefix(trimmed, "gen:")
		if !isDirective {
			body = append(body, line)
			continue
		}

		key, value, _ := strings.Cut(directive, "=")
		switch key {
		case "tag":
			doc.tag = strings.TrimSpace(value)
		case "ignore":
			doc.ignore = true
		default:
			log.Printf("Unknown directive %q", trimmed)
		}
	}

	text = strings.TrimSpace(strings.Join(body, "\n"))
	if text == "" {
		return doc
	}

	summary, rest, _ := strings.Cut(text, "\n")
	doc.summary = strings.TrimSpace(summary)
	doc.description = strings.TrimSpace(rest)
	return doc
}

// splitRoute splits a "METHOD /path" mux pattern.
func splitRoute(route string) (string, string, bool) {
	parts := strings.Fields(route)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.ToUpper(parts[0]), parts[1], true
}

func splitServers(s string) []string {
	var urls []string
	for _, url := range strings.Split(s, ",") {
		if url = strings.TrimSpace(url); url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// generateTagFromPath capitalises the first segment of a URL path.
func generateTagFromPath(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "" || strings.HasPrefix(first, "{") {
		return "Default"
	}
	return strings.ToUpper(first[:1]) + first[1:]
}

// generateOperationID creates a unique ID from the method and path.
func generateOperationID(method, path string) string {
	path = strings.NewReplacer("/", " ", "{", "", "}", "", ".", " ").Replace(path)
	return strings.ToLower(method) + "_" + strings.Join(strings.Fields(path), "_")
}
