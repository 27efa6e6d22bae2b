package dmap

import (
	"errors"
	"fmt"

	"github.com/fr3shw3b/raop-control/pkg/utils"
)

var ErrTruncated = errors.New("dmap: truncated tag")

// Tag is one decoded tag. Payload aliases the input.
type Tag struct {
	Name    string
	Payload []byte
}

// Decode splits data into consecutive tags. Container payloads are not
// descended into; call Decode again on their payload.
func Decode(data []byte) ([]Tag, error) {
	var tags []Tag
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, ErrTruncated
		}
		length := utils.BytesToUint32(data[4:8])
		if uint64(len(data)-8) < uint64(length) {
			return nil, fmt.Errorf("%w: %s wants %d bytes, %d left", ErrTruncated, data[:4], length, len(data)-8)
		}
		tags = append(tags, Tag{Name: string(data[:4]), Payload: data[8 : 8+length]})
		data = data[8+length:]
	}
	return tags, nil
}
