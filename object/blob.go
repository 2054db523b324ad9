package object

// Blob represents a blob object: an opaque byte string with no
// further structure.
type Blob struct {
	*Object
}

// NewBlob wraps a raw Object as a Blob.
func NewBlob(o *Object) *Blob {
	return &Blob{Object: o}
}

// NewBlobFromBytes creates a new blob object from raw content.
func NewBlobFromBytes(content []byte) *Blob {
	return NewBlob(New(TypeBlob, content))
}

// Type returns TypeBlob.
func (b *Blob) Type() Type {
	return TypeBlob
}
