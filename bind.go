package sqlmsg

import (
	"reflect"
	"strings"
	"sync"
)

// Record binding maps exported struct fields, in declaration order, to message fields. The
// "sqlmsg" tag "-" skips a field. Variant fields list their alternatives in the tag, for
// example `sqlmsg:"null,scaledint64,int32"`. Pointer fields are optional.

type recordField struct {
	index        []int
	name         string
	alternatives []Kind
}

type recordPlan struct {
	fields []recordField
	err    error
}

var recordPlans sync.Map // reflect.Type -> *recordPlan

func planRecord(t reflect.Type) *recordPlan {
	if v, ok := recordPlans.Load(t); ok {
		return v.(*recordPlan)
	}
	p := buildRecordPlan(t)
	v, _ := recordPlans.LoadOrStore(t, p)
	return v.(*recordPlan)
}

func buildRecordPlan(t reflect.Type) (p *recordPlan) {
	p = new(recordPlan)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("sqlmsg")
		if tag == "-" {
			continue
		}
		f := recordField{index: sf.Index, name: sf.Name}
		if derefType(sf.Type) == variantType {
			if f.alternatives, p.err = parseKinds(tag); p.err != nil {
				return
			}
			if len(f.alternatives) == 0 {
				p.err = usageErrorf(ErrInvalidType, "variant field %s.%s has no alternatives", t, sf.Name)
				return
			}
		}
		p.fields = append(p.fields, f)
	}
	return
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// parseKinds reads a comma separated list of kind names.
func parseKinds(s string) (ret []Kind, err error) {
	if strings.TrimSpace(s) == "" {
		return
	}
	for _, name := range strings.Split(s, ",") {
		var k Kind
		if k, err = ParseKind(name); err != nil {
			return
		}
		ret = append(ret, k)
	}
	return
}

func structValue(v any, what string) (rv reflect.Value, err error) {
	rv = reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		err = usageErrorf(ErrInvalidType, "%s must be a struct or pointer to struct, got %T", what, v)
	}
	return
}

// GetRecord fills the struct dest points to from the current row.
func (me *Statement) GetRecord(dest any) (err error) {
	if reflect.ValueOf(dest).Kind() != reflect.Pointer {
		return usageErrorf(ErrInvalidType, "record destination must be a pointer, got %T", dest)
	}
	rv, err := structValue(dest, "record destination")
	if err != nil {
		return
	}
	if err = me.checkValid(); err != nil {
		return
	}
	p := planRecord(rv.Type())
	if p.err != nil {
		return p.err
	}
	if len(p.fields) != len(me.outDescs) {
		return usageErrorf(ErrFieldCount, "struct field count (%d) does not match output column count (%d)",
			len(p.fields), len(me.outDescs))
	}
	for i, f := range p.fields {
		if err = me.getValue(i, rv.FieldByIndex(f.index), f.alternatives); err != nil {
			return
		}
	}
	return
}

// SetRecord writes every field of src, a struct or pointer to one, to the input message.
func (me *Statement) SetRecord(src any) (err error) {
	rv, err := structValue(src, "record source")
	if err != nil {
		return
	}
	if err = me.checkValid(); err != nil {
		return
	}
	p := planRecord(rv.Type())
	if p.err != nil {
		return p.err
	}
	if len(p.fields) != len(me.inDescs) {
		return usageErrorf(ErrFieldCount, "struct field count (%d) does not match input parameter count (%d)",
			len(p.fields), len(me.inDescs))
	}
	for i, f := range p.fields {
		if err = me.setValue(i, rv.FieldByIndex(f.index)); err != nil {
			return
		}
	}
	return
}

// GetTuple reads one column into each destination pointer, positionally. Use *Choice for
// variant elements.
func (me *Statement) GetTuple(dest ...any) (err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if len(dest) != len(me.outDescs) {
		return usageErrorf(ErrFieldCount, "tuple element count (%d) does not match output column count (%d)",
			len(dest), len(me.outDescs))
	}
	for i, d := range dest {
		if err = me.Get(i, d); err != nil {
			return
		}
	}
	return
}

// SetTuple binds values positionally, as Set does for each.
func (me *Statement) SetTuple(values ...any) (err error) {
	if err = me.checkValid(); err != nil {
		return
	}
	if len(values) != len(me.inDescs) {
		return usageErrorf(ErrFieldCount, "tuple element count (%d) does not match input parameter count (%d)",
			len(values), len(me.inDescs))
	}
	for i, v := range values {
		if err = me.Set(i, v); err != nil {
			return
		}
	}
	return
}
