package zlink

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// cborEnc uses Core Deterministic Encoding so the same logical value
// always produces identical bytes on the wire.
var cborEnc cbor.EncMode

// cborDec accepts standard CBOR; any-typed targets decode maps as
// map[string]any for interoperability with encoding/json consumers.
var cborDec cbor.DecMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("zlink: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("zlink: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalPayload serializes v according to enc. Supported encodings:
// json/text-json/application-json (JSON), application/cbor (CBOR),
// application/yaml (YAML), zenoh/string and text/plain (v must be a
// string or []byte), zenoh/bytes and application/octet-stream (v must
// be []byte). Other encodings have no facade-side serializer; callers
// pass pre-encoded bytes directly to Put.
func MarshalPayload(v any, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingJSON, EncodingTextJSON, EncodingApplicationJSON:
		return json.Marshal(v)
	case EncodingApplicationCBOR:
		return cborEnc.Marshal(v)
	case EncodingApplicationYAML:
		return yaml.Marshal(v)
	case EncodingString, EncodingTextPlain:
		switch s := v.(type) {
		case string:
			return []byte(s), nil
		case []byte:
			return s, nil
		}
		return nil, fmt.Errorf("encoding %s requires string or []byte, got %T", enc, v)
	case EncodingBytes, EncodingApplicationOctetStream:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("encoding %s requires []byte, got %T", enc, v)
	}
	return nil, fmt.Errorf("no serializer for encoding %s", enc)
}

// UnmarshalPayload deserializes data into v according to enc. The
// supported set mirrors MarshalPayload's structured encodings.
func UnmarshalPayload(data []byte, v any, enc Encoding) error {
	switch enc {
	case EncodingJSON, EncodingTextJSON, EncodingApplicationJSON:
		return json.Unmarshal(data, v)
	case EncodingApplicationCBOR:
		return cborDec.Unmarshal(data, v)
	case EncodingApplicationYAML:
		return yaml.Unmarshal(data, v)
	}
	return fmt.Errorf("no deserializer for encoding %s", enc)
}
