// internal/protocol/frame_decoder.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"shutter-service/internal/model"
)

const measurementFrameSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": [
		"eventType",
		"bottomLeftOpen", "bottomLeftClose",
		"centerOpen", "centerClose",
		"topRightOpen", "topRightClose",
		"bottomLeftOpenOffset", "bottomLeftCloseOffset",
		"topRightOpenOffset", "topRightCloseOffset",
		"firmware_version"
	],
	"properties": {
		"eventType": {"type": "string"},
		"bottomLeftOpen": {"$ref": "#/definitions/tick"},
		"bottomLeftClose": {"$ref": "#/definitions/tick"},
		"centerOpen": {"$ref": "#/definitions/tick"},
		"centerClose": {"$ref": "#/definitions/tick"},
		"topRightOpen": {"$ref": "#/definitions/tick"},
		"topRightClose": {"$ref": "#/definitions/tick"},
		"bottomLeftOpenOffset": {"$ref": "#/definitions/offset"},
		"bottomLeftCloseOffset": {"$ref": "#/definitions/offset"},
		"topRightOpenOffset": {"$ref": "#/definitions/offset"},
		"topRightCloseOffset": {"$ref": "#/definitions/offset"},
		"firmware_version": {"type": "string"}
	},
	"definitions": {
		"tick": {"type": "integer", "minimum": 0, "maximum": 18446744073709551615},
		"offset": {"type": "integer", "minimum": -2147483648, "maximum": 2147483647}
	}
}`

var frameSchema = jsonschema.MustCompileString("measurement_frame.json", measurementFrameSchema)

// LooksLikeJSONObject reports whether a trimmed frame is a candidate measurement frame
func LooksLikeJSONObject(frame string) bool {
	return strings.HasPrefix(frame, "{") && strings.HasSuffix(frame, "}")
}

// DecodeMeasurementFrame parses and validates one measurement frame
func DecodeMeasurementFrame(frame string) (*model.RawSensorFrame, error) {
	decoder := json.NewDecoder(strings.NewReader(frame))
	decoder.UseNumber()

	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return nil, &ProtocolError{Kind: MalformedJSON, Err: err}
	}

	object, ok := document.(map[string]interface{})
	if !ok {
		return nil, &ProtocolError{Kind: MalformedJSON, Err: fmt.Errorf("frame is not a JSON object")}
	}

	rawEventType, present := object["eventType"]
	if !present {
		return nil, &ProtocolError{Kind: MissingField, Detail: "eventType"}
	}
	eventType, ok := rawEventType.(string)
	if !ok {
		return nil, &ProtocolError{Kind: MissingField, Detail: "eventType"}
	}
	if eventType != model.MultiSensorEventType {
		return nil, &ProtocolError{Kind: InvalidEventType, Detail: eventType}
	}

	if err := frameSchema.Validate(document); err != nil {
		return nil, classifySchemaError(err)
	}

	fields := frameFields{object: object}
	decoded := &model.RawSensorFrame{
		BottomLeftOpen:        fields.tick("bottomLeftOpen"),
		BottomLeftClose:       fields.tick("bottomLeftClose"),
		CenterOpen:            fields.tick("centerOpen"),
		CenterClose:           fields.tick("centerClose"),
		TopRightOpen:          fields.tick("topRightOpen"),
		TopRightClose:         fields.tick("topRightClose"),
		BottomLeftOpenOffset:  fields.offset("bottomLeftOpenOffset"),
		BottomLeftCloseOffset: fields.offset("bottomLeftCloseOffset"),
		TopRightOpenOffset:    fields.offset("topRightOpenOffset"),
		TopRightCloseOffset:   fields.offset("topRightCloseOffset"),
	}
	decoded.FirmwareVersion, _ = object["firmware_version"].(string)
	if fields.err != nil {
		return nil, fields.err
	}

	return decoded, nil
}

// frameFields reads numeric fields of a schema-validated frame. Integral values
// written in float or exponent form (1000.0, 1e3) are accepted like integers.
type frameFields struct {
	object map[string]interface{}
	err    error
}

func (f *frameFields) integer(name string) *big.Int {
	if f.err != nil {
		return nil
	}
	number, ok := f.object[name].(json.Number)
	if !ok {
		f.err = &ProtocolError{Kind: MissingField, Detail: name}
		return nil
	}
	value, ok := new(big.Rat).SetString(number.String())
	if !ok || !value.IsInt() {
		f.err = &ProtocolError{Kind: MissingField, Detail: fmt.Sprintf("%s: %s is not an integer", name, number)}
		return nil
	}
	return value.Num()
}

func (f *frameFields) tick(name string) uint64 {
	value := f.integer(name)
	if value == nil {
		return 0
	}
	if !value.IsUint64() {
		f.err = &ProtocolError{Kind: MissingField, Detail: fmt.Sprintf("%s: %s out of range", name, value)}
		return 0
	}
	return value.Uint64()
}

func (f *frameFields) offset(name string) int32 {
	value := f.integer(name)
	if value == nil {
		return 0
	}
	if !value.IsInt64() || value.Int64() < math.MinInt32 || value.Int64() > math.MaxInt32 {
		f.err = &ProtocolError{Kind: MissingField, Detail: fmt.Sprintf("%s: %s out of range", name, value)}
		return 0
	}
	return int32(value.Int64())
}

// classifySchemaError reports schema violations as MissingField: a field that is
// absent and a field of the wrong type or range are equally unusable
func classifySchemaError(err error) error {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return &ProtocolError{Kind: MalformedJSON, Err: err}
	}

	leaf := firstLeaf(validationErr)
	if strings.HasSuffix(leaf.KeywordLocation, "/required") {
		return &ProtocolError{Kind: MissingField, Detail: leaf.Message, Err: err}
	}

	detail := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if detail == "" {
		detail = leaf.Message
	} else {
		detail = fmt.Sprintf("%s: %s", detail, leaf.Message)
	}
	return &ProtocolError{Kind: MissingField, Detail: detail, Err: err}
}

func firstLeaf(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}
