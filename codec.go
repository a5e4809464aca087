package grpcserver

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Codec is the narrow protobuf-runtime interface this package depends on
// (spec §6: message parsing/serialization is "delegated to a protobuf
// library"). It's an interface, rather than calling proto.Marshal
// directly, so MessageReader/MessageWriter tests can substitute a fake
// without pulling in real .pb.go types.
type Codec interface {
	Marshal(msg any) ([]byte, error)
	Unmarshal(data []byte, msg any) error
}

// protoCodec implements Codec on top of google.golang.org/protobuf. Any
// value passed to Marshal/Unmarshal must implement proto.Message.
type protoCodec struct {
	resolver *protoregistry.Types // optional extension registry; nil uses the global registry
}

// NewProtoCodec builds the default Codec, backed by
// google.golang.org/protobuf. resolver is the "optional extension
// registry" from spec §4.4; pass nil to fall back to protobuf's global
// registry of compiled-in extension and message types.
func NewProtoCodec(resolver *protoregistry.Types) Codec {
	return &protoCodec{resolver: resolver}
}

func (c *protoCodec) Marshal(msg any) ([]byte, error) {
	pm, ok := msg.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("grpcserver: %T does not implement proto.Message", msg)
	}
	return proto.Marshal(pm)
}

func (c *protoCodec) Unmarshal(data []byte, msg any) error {
	pm, ok := msg.(proto.Message)
	if !ok {
		return fmt.Errorf("grpcserver: %T does not implement proto.Message", msg)
	}
	opts := proto.UnmarshalOptions{}
	if c.resolver != nil {
		opts.Resolver = c.resolver
	}
	return opts.Unmarshal(data, pm)
}
