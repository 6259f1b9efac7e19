package importer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// statementEncodings are tried in order for non-UTF-8 statement exports.
// Croatian bank exports commonly use Windows-1250 or ISO 8859-2;
// Latin-1 is the last resort since it accepts any byte sequence.
var statementEncodings = []*charmap.Charmap{
	charmap.Windows1250,
	charmap.ISO8859_2,
	charmap.ISO8859_1,
}

// DecodeStatement converts raw statement bytes to a UTF-8 string. Valid
// UTF-8 passes through; otherwise the legacy encodings are tried in
// order, rejecting any decode that produced replacement characters.
func DecodeStatement(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	for _, enc := range statementEncodings {
		text, err := decodeWith(enc.NewDecoder(), raw)
		if err != nil {
			continue
		}
		if strings.ContainsRune(text, utf8.RuneError) {
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("statement is not in a supported encoding")
}

func decodeWith(dec *encoding.Decoder, raw []byte) (string, error) {
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
