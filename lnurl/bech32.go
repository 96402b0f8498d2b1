package lnurl

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const humanReadablePart = "lnurl"

// maxEncodeLength caps the payload handed to the codec. LNURL strings end up
// in QR codes, so anything longer is a caller bug rather than a real URL.
const maxEncodeLength = 2048

// EncodeURL encodes a URL into its bech32 "lnurl1..." representation,
// uppercased for efficient QR encoding.
func EncodeURL(url string) (string, error) {
	if len(url) == 0 {
		return "", newEncodingError("empty input")
	}
	if len(url) > maxEncodeLength {
		return "", newEncodingError("input exceeds %d characters", maxEncodeLength)
	}
	for i := 0; i < len(url); i++ {
		if url[i] < 33 || url[i] > 126 {
			return "", newEncodingError("invalid character at position %d", i)
		}
	}

	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", newEncodingError("%v", err)
	}

	str, err := bech32.Encode(humanReadablePart, converted)
	if err != nil {
		return "", newEncodingError("%v", err)
	}

	return strings.ToUpper(str), nil
}

// DecodeURL decodes a bech32 "lnurl1..." string back into the URL it carries.
func DecodeURL(lnurl string) (string, error) {
	// LNURL strings routinely exceed the 90 character bech32 limit.
	hrp, data, err := bech32.DecodeNoLimit(lnurl)
	if err != nil {
		return "", newDecodingError("%v", err)
	}

	if hrp != humanReadablePart {
		return "", newDecodingError(
			"incorrect hrp, expected '%s', got '%s'", humanReadablePart, hrp,
		)
	}

	data, err = bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", newDecodingError("%v", err)
	}

	return string(data), nil
}
