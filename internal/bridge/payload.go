package bridge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidPayload is returned for strike payloads that do not match the schema.
var ErrInvalidPayload = errors.New("bridge: invalid strike payload")

const payloadSchemaURL = "https://dotmatrix.local/schema/strike-payload-v1.schema.json"

//go:embed schema/strike-payload-v1.schema.json
var payloadSchemaJSON []byte

var payloadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(payloadSchemaURL, bytes.NewReader(payloadSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(payloadSchemaURL)
})

// StrikePayload is the JSON form of a strike request.
type StrikePayload struct {
	Bytes []int  `json:"bytes"`
	Path  string `json:"path"`
}

// DecodeStrikePayload parses and schema-checks a JSON strike request. The
// schema bounds values to [0,255]; alphabet membership is left to
// ExecuteStrike.
func DecodeStrikePayload(data []byte) (*StrikePayload, error) {
	schema, err := payloadSchema()
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p StrikePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
