package codec

// jpeg2000Codec is a gated stub for Compression=33003/33004/33005 (the three
// registered JPEG2000 variants). No in-process JPEG2000 implementation is
// wired into this registry, so every call is marked NeedsExternalContext
// and simply fails with ErrNoExternalContext; a caller that needs these
// codes must register a real codec (e.g. an external-process helper) in
// its place (spec.md 4.6's "needs external context" flag for a compression
// code the registry knows about but cannot itself decode or encode).
type jpeg2000Codec struct{}

func (jpeg2000Codec) Decode(encoded []byte, opts Options) ([]byte, error) {
	return nil, ErrNoExternalContext
}

func (jpeg2000Codec) Encode(raw []byte, opts Options) ([]byte, error) {
	return nil, ErrNoExternalContext
}
