package collection

// The modern schema stores note-type and template settings as protobuf
// config blobs. Only three string fields matter to this engine: the
// style sheet (notetype config field 8) and a template's question and
// answer formats (template config fields 2 and 3). Rather than pull in
// a protobuf stack for three length-delimited strings, the wire format
// is walked by hand; unknown fields are skipped and malformed input
// yields empty strings rather than an error, matching how permissively
// existing readers treat these blobs.

const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

const (
	notetypeCSSField  = 8
	templateQfmtField = 2
	templateAfmtField = 3
)

// readVarint decodes a base-128 varint at blob[i:]. ok is false when the
// blob ends mid-varint.
func readVarint(blob []byte, i int) (val uint64, next int, ok bool) {
	var shift uint
	for i < len(blob) {
		b := blob[i]
		i++
		val |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return val, i, true
		}
		shift += 7
		if shift > 63 {
			return 0, i, false
		}
	}
	return 0, i, false
}

// scanStrings walks a protobuf blob and returns the raw bytes of every
// requested length-delimited field.
func scanStrings(blob []byte, want ...int) map[int]string {
	out := make(map[int]string, len(want))
	wanted := make(map[int]struct{}, len(want))
	for _, f := range want {
		wanted[f] = struct{}{}
	}

	i := 0
	for i < len(blob) {
		tag, next, ok := readVarint(blob, i)
		if !ok {
			return out
		}
		i = next
		field := int(tag >> 3)

		switch tag & 0x07 {
		case wireVarint:
			if _, i, ok = readVarint(blob, i); !ok {
				return out
			}
		case wireBytes:
			length, next, ok := readVarint(blob, i)
			if !ok {
				return out
			}
			i = next
			end := i + int(length)
			if end < i || end > len(blob) {
				return out
			}
			if _, hit := wanted[field]; hit {
				out[field] = string(blob[i:end])
			}
			i = end
		case wire32Bit:
			i += 4
		case wire64Bit:
			i += 8
		default:
			return out
		}
	}
	return out
}

// extractCSS pulls the style sheet out of a notetype config blob.
func extractCSS(blob []byte) string {
	return scanStrings(blob, notetypeCSSField)[notetypeCSSField]
}

// extractTemplateFormats pulls the question and answer format strings
// out of a template config blob.
func extractTemplateFormats(blob []byte) (qfmt, afmt string) {
	got := scanStrings(blob, templateQfmtField, templateAfmtField)
	return got[templateQfmtField], got[templateAfmtField]
}

func appendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// appendStringField appends a length-delimited string field when the
// value is non-empty.
func appendStringField(dst []byte, field int, val string) []byte {
	if val == "" {
		return dst
	}
	dst = appendVarint(dst, uint64(field)<<3|wireBytes)
	dst = appendVarint(dst, uint64(len(val)))
	return append(dst, val...)
}

// encodeNotetypeConfig builds a notetype config blob carrying only the
// style sheet.
func encodeNotetypeConfig(css string) []byte {
	return appendStringField(nil, notetypeCSSField, css)
}

// encodeTemplateConfig builds a template config blob carrying the
// question and answer formats.
func encodeTemplateConfig(qfmt, afmt string) []byte {
	dst := appendStringField(nil, templateQfmtField, qfmt)
	return appendStringField(dst, templateAfmtField, afmt)
}
