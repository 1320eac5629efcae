// Package phone normalizes user-supplied phone numbers to E.164, the single
// format used as a storage key.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for strings that are not a valid phone number.
var ErrInvalid = errors.New("phone: invalid number")

// Normalizer parses numbers with a default region for inputs that lack a
// country code.
type Normalizer struct {
	region string
}

// NewNormalizer returns a Normalizer for the ISO 3166 region code (e.g. "US").
func NewNormalizer(region string) *Normalizer {
	return &Normalizer{region: strings.ToUpper(region)}
}

// Normalize returns raw in E.164 form, e.g. "+15551234567".
func (n *Normalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	num, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
