package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemasErr  error
	helloSchema *jsonschema.Schema
	actSchema   *jsonschema.Schema
)

func compileSchemas() {
	comp := jsonschema.NewCompiler()
	for _, name := range []string{"hello.schema.json", "act.schema.json"} {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return
		}
		if err := comp.AddResource(name, bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("%s: %w", name, err)
			return
		}
	}
	if helloSchema, schemasErr = comp.Compile("hello.schema.json"); schemasErr != nil {
		return
	}
	actSchema, schemasErr = comp.Compile("act.schema.json")
}

func validate(get func() *jsonschema.Schema, raw []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return get().Validate(doc)
}

func ValidateHello(raw []byte) error {
	return validate(func() *jsonschema.Schema { return helloSchema }, raw)
}

func ValidateAct(raw []byte) error {
	return validate(func() *jsonschema.Schema { return actSchema }, raw)
}
