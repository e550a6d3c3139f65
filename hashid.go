package auth

import (
	"fmt"

	"github.com/speps/go-hashids/v2"
)

// DefaultHashidMinLength is the shortest hashid produced
const DefaultHashidMinLength = 10

// Hashids implements IDCodec with go-hashids
type Hashids struct {
	h *hashids.HashID
}

var _ IDCodec = (*Hashids)(nil)

// NewHashids builds a codec from a salt and a minimum length
func NewHashids(salt string, minLength int) (*Hashids, error) {
	if minLength <= 0 {
		minLength = DefaultHashidMinLength
	}

	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to create hashids codec: %w", err)
	}
	return &Hashids{h: h}, nil
}

// Encode obfuscates id
func (c *Hashids) Encode(id int64) (string, error) {
	return c.h.EncodeInt64([]int64{id})
}

// Decode reverses Encode
func (c *Hashids) Decode(hash string) (int64, error) {
	ids, err := c.h.DecodeInt64WithError(hash)
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("hashid %q decodes to %d values", hash, len(ids))
	}
	return ids[0], nil
}
