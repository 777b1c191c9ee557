package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/insolvency-docs/constants"
)

// BuildFieldsJSONSchema describes the serialized form of Fields.
func BuildFieldsJSONSchema() map[string]any {
	nonEmpty := func() map[string]any { return map[string]any{"type": "string", "minLength": 1} }
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			string(FieldFormNumber):   map[string]any{"type": "string", "pattern": `^\d{1,3}(\.\d{1,2})?$`},
			string(FieldFormType):     map[string]any{"type": "string", "enum": constants.FormTypesAsStringSlice()},
			string(FieldClientName):   nonEmpty(),
			string(FieldTrusteeName):  nonEmpty(),
			string(FieldClaimantName): nonEmpty(),
			string(FieldDateSigned):   nonEmpty(),
			string(FieldProposalType): map[string]any{"type": "string", "enum": []string{"consumer", "commercial", "division-i"}},
		},
	}
}

var (
	fieldsSchemaOnce sync.Once
	fieldsSchema     *jsonschema.Schema
	fieldsSchemaErr  error
)

func compiledFieldsSchema() (*jsonschema.Schema, error) {
	fieldsSchemaOnce.Do(func() {
		b, err := json.Marshal(BuildFieldsJSONSchema())
		if err != nil {
			fieldsSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("fields.json", bytes.NewReader(b)); err != nil {
			fieldsSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		fieldsSchema, fieldsSchemaErr = compiler.Compile("fields.json")
		if fieldsSchemaErr != nil {
			fieldsSchemaErr = fmt.Errorf("compile schema: %w", fieldsSchemaErr)
		}
	})
	return fieldsSchema, fieldsSchemaErr
}

// ValidateJSON checks serialized Fields against BuildFieldsJSONSchema.
func ValidateJSON(data []byte) error {
	schema, err := compiledFieldsSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("fields do not match schema: %w", err)
	}
	return nil
}
