package sqlmsg

import (
	"github.com/cockroachdb/errors"

	"github.com/anacrolix/sqlmsg/wire"
)

// deriveLayout builds descriptors and a message buffer for md. Text and extended time zone
// fields are normalized, which takes one builder pass over the engine's metadata; the revised
// metadata is what must be handed back to the engine with the buffer. Every null flag in the
// returned buffer is set.
func deriveLayout(md wire.Metadata) (descs []Descriptor, msg []byte, revised wire.Metadata, err error) {
	revised = md
	if md == nil || md.Count() == 0 {
		return
	}
	count := md.Count()
	descs = make([]Descriptor, 0, count)
	var builder wire.MetadataBuilder
	for i := 0; i < count; i++ {
		f := md.Field(i)
		d := Descriptor{
			OriginalType: f.Type,
			Scale:        f.Scale,
			Length:       f.Length,
			Offset:       f.Offset,
			NullOffset:   f.NullOffset,
			IsNullable:   f.Nullable,
			Field:        f.Field,
			Alias:        f.Alias,
			Relation:     f.Relation,
		}
		var rebuild wire.Type
		d.AdjustedType, rebuild = adjust(f.Type)
		if rebuild != 0 {
			if builder == nil {
				builder = md.Builder()
			}
			if err = builder.SetType(i, rebuild); err != nil {
				err = errors.Wrapf(err, "rebuilding field %d as %v", i, rebuild)
				return
			}
		}
		descs = append(descs, d)
	}
	if builder != nil {
		revised, err = builder.Metadata()
		if err != nil {
			err = errors.Wrap(err, "rebuilding metadata")
			return
		}
		for i := range descs {
			f := revised.Field(i)
			descs[i].Offset = f.Offset
			descs[i].NullOffset = f.NullOffset
			descs[i].Length = f.Length
		}
	}
	msg = make([]byte, revised.MessageLength())
	resetNullFlags(descs, msg)
	return
}

func resetNullFlags(descs []Descriptor, msg []byte) {
	for _, d := range descs {
		wire.PutInt16(msg[d.NullOffset:], wire.NullFlagNull)
	}
}
