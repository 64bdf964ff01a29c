package fetcher

import (
	"bytes"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText converts data to UTF-8. A named charset ("windows-1252",
// "utf-16le", ...) is applied as given. With an empty name a leading BOM
// selects the encoding, valid UTF-8 passes through, and anything else is
// read as Windows-1252.
func DecodeText(data []byte, charset string) ([]byte, error) {
	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "decode: unknown charset %q", charset)
		}
		out, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil {
			return nil, eris.Wrapf(err, "decode: %s", charset)
		}
		return bytes.TrimPrefix(out, bomUTF8), nil
	}

	if hasBOM(data) {
		out, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), data)
		if err != nil {
			return nil, eris.Wrap(err, "decode: bom")
		}
		return out, nil
	}

	if utf8.Valid(data) {
		return data, nil
	}

	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, eris.Wrap(err, "decode: windows-1252")
	}
	return out, nil
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF8) ||
		bytes.HasPrefix(data, bomUTF16LE) ||
		bytes.HasPrefix(data, bomUTF16BE)
}
