// Package dmap encodes DMAP tagged values.
//
// Every tag is a four character name, a 4 byte big endian payload length
// and the payload itself. Containers are tags whose payload is a
// concatenation of other tags.
package dmap

import "github.com/fr3shw3b/raop-control/pkg/utils"

// Tag names used for track metadata.
const (
	TagListingItem = "mlit"
	TagItemName    = "minm"
	TagAlbum       = "asal"
	TagArtist      = "asar"
)

func RawTag(name string, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload))
	out = append(out, name...)
	out = append(out, utils.Uint32ToBytes(uint32(len(payload)))...)
	return append(out, payload...)
}

// StringTag encodes value as UTF-8. The length is the byte length.
func StringTag(name string, value string) []byte {
	return RawTag(name, []byte(value))
}

func ContainerTag(name string, payload []byte) []byte {
	return RawTag(name, payload)
}

func Uint8Tag(name string, value uint8) []byte {
	return RawTag(name, []byte{value})
}

func Uint32Tag(name string, value uint32) []byte {
	return RawTag(name, utils.Uint32ToBytes(value))
}

func Uint64Tag(name string, value uint64) []byte {
	return RawTag(name, utils.Uint64ToBytes(value))
}

func BoolTag(name string, value bool) []byte {
	if value {
		return Uint8Tag(name, 1)
	}
	return Uint8Tag(name, 0)
}
