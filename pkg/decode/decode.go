// Package decode turns raw meter export bytes into UTF-8 text.
//
// Exports come from a mix of vendor tools: most write UTF-8, some prepend a
// byte order mark, some write UTF-16 and older Chinese-locale tools write
// GB18030. Anything that still does not decode cleanly is rejected with
// types.ErrDecode.
package decode

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/raterudder/powerstats/pkg/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// Bytes decodes raw into UTF-8 text with any byte order mark removed.
func Bytes(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, utf8BOM):
		raw = raw[len(utf8BOM):]
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%w: invalid UTF-8 after byte order mark", types.ErrDecode)
		}
		return string(raw), nil
	case bytes.HasPrefix(raw, utf16LEBOM), bytes.HasPrefix(raw, utf16BEBOM):
		return transcode(raw, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), "UTF-16")
	case utf8.Valid(raw):
		return string(raw), nil
	default:
		return transcode(raw, simplifiedchinese.GB18030, "GB18030")
	}
}

// ReadFile reads the file at path and decodes it with Bytes.
func ReadFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text, err := Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

func transcode(raw []byte, enc encoding.Encoding, name string) (string, error) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrDecode, name, err)
	}
	text := string(out)
	// decoders substitute U+FFFD for bytes they cannot map
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", fmt.Errorf("%w: invalid %s byte sequence", types.ErrDecode, name)
	}
	return strings.TrimPrefix(text, "\ufeff"), nil
}
