// Package phone canonicalizes free-form phone input into E.164. Booking
// records carry numbers in whatever shape the guest typed them, so the
// normalizer has to absorb local formats ("0812345678") as well as already
// international ones ("+66 81 234 5678").
package phone

import (
	"errors"
	"fmt"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalid = errors.New("invalid phone number")

type Normalizer struct {
	region string
}

// NewNormalizer creates a normalizer that interprets numbers without a
// country prefix as belonging to region (ISO 3166-1 alpha-2, e.g. "TH").
func NewNormalizer(region string) *Normalizer {
	if region == "" {
		region = "TH"
	}
	return &Normalizer{region: region}
}

// Normalize parses raw and returns the E.164 form, e.g. "0812345678" with
// region TH becomes "+66812345678".
func (n *Normalizer) Normalize(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalid
	}
	p, err := libphonenumber.Parse(raw, n.region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("%w: %s", ErrInvalid, raw)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
