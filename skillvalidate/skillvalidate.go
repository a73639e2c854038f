// Package skillvalidate validates inbound message "data" parts against a
// skill's declared JSON Schema before admission (spec.md §4.5 onMessageSend
// validation step).
//
// Grounded on the teacher's validatePayloadJSONAgainstSchema
// (registry/service.go): the same json.Unmarshal-then-compile-then-validate
// shape using github.com/santhosh-tekuri/jsonschema/v6, generalized from a
// single tool payload schema to one compiled schema per AgentCard skill.
package skillvalidate

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/a2a/errs"
	"goa.design/a2a/types"
)

// Validator holds one compiled JSON Schema per skill ID that declares a
// PayloadSchema. Skills without a PayloadSchema are not validated.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles the PayloadSchema of every skill in skills that declares one.
func New(skills []*types.Skill) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*jsonschema.Schema)}
	for _, skill := range skills {
		if skill == nil || len(skill.PayloadSchema) == 0 {
			continue
		}
		var doc any
		if err := json.Unmarshal(skill.PayloadSchema, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal payload schema for skill %q: %w", skill.ID, err)
		}
		c := jsonschema.NewCompiler()
		resource := "skill:" + skill.ID
		if err := c.AddResource(resource, doc); err != nil {
			return nil, fmt.Errorf("add schema resource for skill %q: %w", skill.ID, err)
		}
		schema, err := c.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile payload schema for skill %q: %w", skill.ID, err)
		}
		v.schemas[skill.ID] = schema
	}
	return v, nil
}

// ValidateMessage checks every "data" part of msg against the schema of the
// skill named by msg.Metadata["skillId"], if both are present. A message
// naming an unknown skill, or a skill without a declared schema, passes
// unvalidated: schema enforcement is opt-in per skill.
func (v *Validator) ValidateMessage(msg *types.Message) error {
	if v == nil || msg == nil {
		return nil
	}
	skillID, _ := msg.Metadata["skillId"].(string)
	if skillID == "" {
		return nil
	}
	schema, ok := v.schemas[skillID]
	if !ok {
		return nil
	}
	for _, part := range msg.Parts {
		if part == nil || part.Type != "data" || len(part.Data) == 0 {
			continue
		}
		var doc any
		if err := json.Unmarshal(part.Data, &doc); err != nil {
			return errs.Wrap(errs.KindInvalidParams, err, "message part data is not valid JSON")
		}
		if err := schema.Validate(doc); err != nil {
			return errs.Wrap(errs.KindInvalidParams, err, "message data does not satisfy skill %q payload schema", skillID)
		}
	}
	return nil
}
