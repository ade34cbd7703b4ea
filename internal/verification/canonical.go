package verification

import (
	"fmt"
	"net/url"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// CanonicalContent rebuilds the bytes the ad network signed from a raw query
// string. The reserved parameters are dropped, the rest re-encoded in name
// order (values of a repeated name keep their arrival order) and the result
// percent-decoded. A literal '+' survives decoding.
//
// The content never depends on where signature and key_id sit in the query,
// so proxies that reorder parameters do not break verification.
func CanonicalContent(rawQuery string) ([]byte, error) {
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("unparsable query string: %w", err)
	}
	params.Del(ssv.SignatureParam)
	params.Del(ssv.KeyIDParam)

	content, err := url.PathUnescape(params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to decode canonical content: %w", err)
	}
	return []byte(content), nil
}
