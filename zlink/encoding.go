package zlink

// Encoding identifies the media type of a payload. It is a closed
// enumeration with a bidirectional string mapping; unknown strings map
// to EncodingCustom, never to an error.
type Encoding int32

const (
	EncodingEmpty                  Encoding = 0
	EncodingBytes                  Encoding = 1
	EncodingString                 Encoding = 2
	EncodingJSON                   Encoding = 3
	EncodingTextPlain              Encoding = 4
	EncodingTextJSON               Encoding = 5
	EncodingTextHTML               Encoding = 6
	EncodingTextXML                Encoding = 7
	EncodingTextCSS                Encoding = 8
	EncodingTextCSV                Encoding = 9
	EncodingTextJavascript         Encoding = 10
	EncodingImagePNG               Encoding = 11
	EncodingImageJPEG              Encoding = 12
	EncodingImageGIF               Encoding = 13
	EncodingImageBMP               Encoding = 14
	EncodingImageWebP              Encoding = 15
	EncodingApplicationOctetStream Encoding = 16
	EncodingApplicationJSON        Encoding = 17
	EncodingApplicationXML         Encoding = 18
	EncodingApplicationCBOR        Encoding = 19
	EncodingApplicationYAML        Encoding = 20
	EncodingApplicationProtobuf    Encoding = 21
	EncodingApplicationCDR         Encoding = 22
	EncodingCustom                 Encoding = 100
)

var encodingNames = map[Encoding]string{
	EncodingEmpty:                  "empty",
	EncodingBytes:                  "zenoh/bytes",
	EncodingString:                 "zenoh/string",
	EncodingJSON:                   "application/json",
	EncodingTextPlain:              "text/plain",
	EncodingTextJSON:               "text/json",
	EncodingTextHTML:               "text/html",
	EncodingTextXML:                "text/xml",
	EncodingTextCSS:                "text/css",
	EncodingTextCSV:                "text/csv",
	EncodingTextJavascript:         "text/javascript",
	EncodingImagePNG:               "image/png",
	EncodingImageJPEG:              "image/jpeg",
	EncodingImageGIF:               "image/gif",
	EncodingImageBMP:               "image/bmp",
	EncodingImageWebP:              "image/webp",
	EncodingApplicationOctetStream: "application/octet-stream",
	EncodingApplicationJSON:        "application/json",
	EncodingApplicationXML:         "application/xml",
	EncodingApplicationCBOR:        "application/cbor",
	EncodingApplicationYAML:        "application/yaml",
	EncodingApplicationProtobuf:    "application/protobuf",
	EncodingApplicationCDR:         "application/cdr",
}

// String returns the media-type name of the encoding, or "unknown" for
// values outside the enumeration.
func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return "unknown"
}

// EncodingFromString maps a media-type name to its Encoding. The empty
// string maps to EncodingEmpty; any unrecognized string maps to
// EncodingCustom. "application/json" maps to EncodingApplicationJSON
// (EncodingJSON is its legacy alias and shares the name).
func EncodingFromString(s string) Encoding {
	if s == "" {
		return EncodingEmpty
	}
	if e, ok := encodingIDs[s]; ok {
		return e
	}
	return EncodingCustom
}

var encodingIDs = func() map[string]Encoding {
	ids := make(map[string]Encoding, len(encodingNames))
	for e, name := range encodingNames {
		if e == EncodingJSON || e == EncodingEmpty {
			continue
		}
		ids[name] = e
	}
	ids["empty"] = EncodingEmpty
	return ids
}()
