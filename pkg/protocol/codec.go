package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/ugorji/go/codec"
)

var (
	errNotObject = errors.New("json document is not an object")

	jsonHandle = newJSONHandle()
)

func newJSONHandle() *codec.JsonHandle {
	h := &codec.JsonHandle{}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

// decodeObject decodes a JSON object and copies its members into target.
// Member names match the mapstructure tags exactly. Members absent from the
// document or set to null keep the value already present in target, scalar
// members are rendered as text.
func decodeObject(data []byte, target any) error {
	var members map[string]codec.Raw
	if err := codec.NewDecoderBytes(data, jsonHandle).Decode(&members); err != nil {
		return err
	}
	if members == nil {
		return errNotObject
	}

	raw := make(map[string]interface{}, len(members))
	for name, member := range members {
		v, err := decodeMember(member)
		if err != nil {
			return err
		}
		raw[name] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       textHook,
		WeaklyTypedInput: true,
		MatchName:        func(mapKey, fieldName string) bool { return mapKey == fieldName },
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// decodeMember decodes one member value. Numbers keep their literal text so
// that large or fractional values read back exactly as sent.
func decodeMember(member codec.Raw) (interface{}, error) {
	text := bytes.TrimSpace(member)
	if len(text) > 0 && (text[0] == '-' || (text[0] >= '0' && text[0] <= '9')) {
		return string(text), nil
	}

	var v interface{}
	if err := codec.NewDecoderBytes(text, jsonHandle).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// textHook renders non-string JSON values bound for string fields the way
// vote sites expect them to read back.
func textHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t.Kind() != reflect.String {
		return data, nil
	}

	switch v := data.(type) {
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}

	switch f.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		out, err := encodeJSON(data)
		if err != nil {
			return nil, err
		}
		return string(out), nil
	}
	return data, nil
}

func encodeJSON(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, jsonHandle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}
