package sqlmsg

// exactKinds lists the kinds that represent a column without loss, best first.
func exactKinds(d Descriptor) []Kind {
	scaled := d.Scale != 0
	switch d.AdjustedType {
	case AdjustedBoolean:
		return []Kind{KindBool}
	case AdjustedInt16:
		if scaled {
			return []Kind{KindScaledInt16, KindScaledInt32, KindScaledInt64, KindScaledBigInt, KindInt16}
		}
		return []Kind{KindInt16}
	case AdjustedInt32:
		if scaled {
			return []Kind{KindScaledInt32, KindScaledInt64, KindScaledBigInt, KindInt32}
		}
		return []Kind{KindInt32}
	case AdjustedInt64:
		if scaled {
			return []Kind{KindScaledInt64, KindScaledBigInt, KindInt64}
		}
		return []Kind{KindInt64}
	case AdjustedInt128:
		if scaled {
			return []Kind{KindScaledOpaqueInt128, KindScaledBigInt}
		}
		return []Kind{KindScaledOpaqueInt128, KindBigInt}
	case AdjustedFloat:
		return []Kind{KindFloat32}
	case AdjustedDouble:
		return []Kind{KindFloat64}
	case AdjustedDecFloat16:
		return []Kind{KindOpaqueDecFloat16, KindDecFloat16}
	case AdjustedDecFloat34:
		return []Kind{KindOpaqueDecFloat34, KindDecFloat34}
	case AdjustedString:
		return []Kind{KindString}
	case AdjustedDate:
		return []Kind{KindOpaqueDate, KindDate}
	case AdjustedTime:
		return []Kind{KindOpaqueTime, KindTime}
	case AdjustedTimestamp:
		return []Kind{KindOpaqueTimestamp, KindTimestamp}
	case AdjustedTimeTz:
		return []Kind{KindOpaqueTimeTz, KindTimeTz}
	case AdjustedTimestampTz:
		return []Kind{KindOpaqueTimestampTz, KindTimestampTz}
	case AdjustedBlob:
		return []Kind{KindBlobId}
	}
	return nil
}

// GetVariant reads the column as one of alternatives. A null column gives the null variant
// when KindNull is an alternative. Otherwise the first lossless alternative for the column's
// type is used, and failing that the first non-opaque alternative, in the order given, that
// converts.
func (me *Statement) GetVariant(index int, alternatives ...Kind) (ret Variant, err error) {
	d, _, ok, err := me.column(index)
	if err != nil {
		return
	}
	if !ok {
		if !hasKind(alternatives, KindNull) {
			err = usageErrorf(ErrNoVariantMatch, "null value at index %d and no null alternative in %v", index, alternatives)
		}
		return
	}
	for _, k := range exactKinds(*d) {
		if !hasKind(alternatives, k) {
			continue
		}
		ret.Value, _, err = me.getKind(index, k)
		if err == nil {
			ret.Kind = k
		}
		return
	}
	var lastErr error
	for _, k := range alternatives {
		if k == KindNull || k.Opaque() {
			continue
		}
		v, _, err := me.getKind(index, k)
		if err != nil {
			lastErr = err
			continue
		}
		ret = Variant{k, v}
		return ret, nil
	}
	err = usageErrorf(ErrNoVariantMatch, "no alternative in %v matches %v at index %d", alternatives, d.AdjustedType, index)
	if lastErr != nil {
		err = usageErrorf(ErrNoVariantMatch, "no alternative in %v matches %v at index %d: %v",
			alternatives, d.AdjustedType, index, lastErr)
	}
	return
}

// SetVariant writes v with the setter for its kind. The null variant sets null.
func (me *Statement) SetVariant(index int, v Variant) error {
	if v.IsNull() {
		return me.SetNull(index)
	}
	return me.setKind(index, v.Kind, v.Value)
}
