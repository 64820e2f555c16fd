package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mcoot/dragonrealm/internal/model"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const envelopeSchema = "envelope"

var inboundTypes = []Type{
	TypePositionUpdate,
	TypeDragonSelected,
	TypeChatMessage,
	TypeCollectibleCollected,
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		names := []string{envelopeSchema}
		for _, t := range inboundTypes {
			names = append(names, string(t))
		}

		for _, name := range names {
			data, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}

		compiled := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := compiler.Compile(schemaURL(name))
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

func schemaURL(name string) string {
	return "mem://dragonrealm/" + name + ".schema.json"
}

// Envelope is the frame every message travels in
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps a payload in an envelope
func Encode(t Type, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Decode validates an inbound frame and returns its typed payload: one of
// PositionUpdate, DragonSelected, ChatMessage or CollectibleCollected.
// Every rejection is a *model.ValidationError.
func Decode(data []byte) (Type, any, error) {
	compiled, err := loadSchemas()
	if err != nil {
		return "", nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, model.Malformed("envelope", "not valid JSON")
	}
	if err := compiled[envelopeSchema].Validate(doc); err != nil {
		return "", nil, model.Malformed("envelope", describe(err))
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, model.Malformed("envelope", "not valid JSON")
	}

	schema, ok := compiled[string(env.Type)]
	if !ok {
		return env.Type, nil, model.Malformed("type", fmt.Sprintf("unknown event type %q", env.Type))
	}

	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return env.Type, nil, model.Malformed("payload", "not valid JSON")
	}
	if err := schema.Validate(body); err != nil {
		return env.Type, nil, model.Malformed("payload", describe(err))
	}

	var msg any
	switch env.Type {
	case TypePositionUpdate:
		var p PositionUpdate
		err = json.Unmarshal(payload, &p)
		msg = p
	case TypeDragonSelected:
		var p DragonSelected
		err = json.Unmarshal(payload, &p)
		msg = p
	case TypeChatMessage:
		var p ChatMessage
		err = json.Unmarshal(payload, &p)
		msg = p
	case TypeCollectibleCollected:
		var p CollectibleCollected
		err = json.Unmarshal(payload, &p)
		msg = p
	}
	if err != nil {
		return env.Type, nil, model.Malformed("payload", err.Error())
	}
	return env.Type, msg, nil
}

// describe flattens a schema failure to its most specific cause
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}
