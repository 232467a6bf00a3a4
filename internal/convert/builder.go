package convert

// Builder accumulates target record fields during a conversion attempt.
// The record is only handed out by Build at the terminal transition, so
// rejection paths never leak a partially built record.
type Builder struct {
	fields Record
	sealed bool
}

// NewBuilder creates an empty target record builder.
func NewBuilder() *Builder {
	return &Builder{fields: make(Record)}
}

// Set assigns a target field directly.
func (b *Builder) Set(key string, value any) {
	if b.sealed {
		panic("convert: builder used after Build")
	}
	b.fields[key] = value
}

// MapValue copies a source field into the target via the field mapper.
func (b *Builder) MapValue(targetKey string, source Record, sourceKey, typ string) {
	if b.sealed {
		panic("convert: builder used after Build")
	}
	MapValue(b.fields, targetKey, source, sourceKey, typ)
}

// Has reports whether a target field has been assigned.
func (b *Builder) Has(key string) bool {
	_, ok := b.fields[key]
	return ok
}

// String returns an assigned field as a string, or "" when unset.
func (b *Builder) String(key string) string {
	return SourceString(b.fields, key)
}

// Build seals the builder and returns the finished record.
func (b *Builder) Build() Record {
	b.sealed = true
	return b.fields
}
