package aml

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// normalizeString decodes an AML ComputationalData String. The ACPI
// spec defines these as NUL-terminated ASCII, but some firmware tables
// stuff non-ASCII OEM text (vendor names, model strings) into the same
// encoding; rather than assume ASCII and mangle it, bytes outside the
// ASCII range are run through a UTF-8 decoder so malformed sequences
// come out as the Unicode replacement character instead of garbage.
func normalizeString(raw []byte) string {
	for _, b := range raw {
		if b >= 0x80 {
			return decodeNonASCII(raw)
		}
	}
	return string(raw)
}

func decodeNonASCII(raw []byte) string {
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
