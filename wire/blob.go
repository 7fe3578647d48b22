package wire

// BlobId identifies out-of-band binary content. It is carried by value and never dereferenced
// by the marshalling layer.
type BlobId struct {
	High uint32
	Low  uint32
}

func GetBlobId(b []byte) BlobId {
	return BlobId{High: GetUint32(b), Low: GetUint32(b[4:])}
}

func PutBlobId(b []byte, v BlobId) {
	PutUint32(b, v.High)
	PutUint32(b[4:], v.Low)
}

func (me BlobId) IsZero() bool {
	return me.High == 0 && me.Low == 0
}
