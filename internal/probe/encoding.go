package probe

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encodings lists the supported output encodings by configuration name.
var Encodings = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"windows-1252": charmap.Windows1252,
}

// LookupEncoding resolves an encoding name. Names are case-insensitive and
// "utf8", "utf-16-le" style spellings are accepted.
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf8":
		key = "utf-8"
	case "utf-16-le", "utf16le":
		key = "utf-16le"
	case "utf-16-be", "utf16be":
		key = "utf-16be"
	case "cp1252":
		key = "windows-1252"
	}

	enc, ok := Encodings[key]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// EncodingNames returns the supported configuration names, sorted.
func EncodingNames() []string {
	names := make([]string, 0, len(Encodings))
	for name := range Encodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decode converts raw command output to a string using enc.
func decode(enc encoding.Encoding, raw []byte) (string, error) {
	if enc == unicode.UTF8 {
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}
