package registry

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed registry.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// getSchema compiles the embedded JSON schema once and returns it.
func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("registry.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("registry.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// validate checks raw registry JSON against the embedded schema. Schema
// violations are reported as ErrInvalidRegistry with one line per leaf
// issue.
func validate(data []byte) error {
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}

	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("unexpected validation error type: %w", err)
	}

	return fmt.Errorf("%w: %s", ErrInvalidRegistry, strings.Join(issues(validationErr), "; "))
}

// issues walks the error tree and returns deduplicated, sorted leaf
// issues as "location: message".
func issues(verr *jsonschema.ValidationError) []string {
	var lines []string
	collectIssues(verr, &lines)
	if len(lines) == 0 {
		return []string{verr.Error()}
	}

	seen := make(map[string]bool)
	result := lines[:0]
	for _, line := range lines {
		if !seen[line] {
			seen[line] = true
			result = append(result, line)
		}
	}
	sort.Strings(result)
	return result
}

func collectIssues(ve *jsonschema.ValidationError, lines *[]string) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, lines)
		}
		return
	}
	if ve.ErrorKind == nil {
		return
	}

	// oneOf over string|object reports both branches; the type mismatches
	// are the useful part.
	kwPath := ve.ErrorKind.KeywordPath()
	if len(kwPath) == 0 || kwPath[len(kwPath)-1] == "oneOf" {
		return
	}

	path := "/" + strings.Join(ve.InstanceLocation, "/")
	*lines = append(*lines, path+": "+ve.ErrorKind.LocalizedString(printer))
}
