// SPDX-License-Identifier: MIT

package state

import (
	"github.com/ManuGH/skylib/pkg/codec"
)

// KeyCodec encodes keys as their "namespace:name" string.
var KeyCodec = codec.Convert(codec.String, ParseKey, Key.String)

// RegisterCodecs registers the codecs of this package on r.
func RegisterCodecs(r *codec.Registry) error {
	return codec.Register(r, KeyCodec)
}
