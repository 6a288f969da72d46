package ups

import "sort"

// Change is the old and new value of one field.
type Change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Delta holds the fields whose persisted value differs from a new reading.
type Delta map[Field]Change

func (d Delta) Empty() bool { return len(d) == 0 }

// Fields returns the changed fields in canonical order.
func (d Delta) Fields() []Field {
	out := make([]Field, 0, len(d))
	for f := range d {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Diff compares next against prev.
//
// A field is reported only when prev already held a value for it and the two
// strings differ. First observations never count as changes, and no numeric
// normalization is applied ("50" and "50.0" differ).
func Diff(prev, next Reading) Delta {
	d := Delta{}
	for f, nv := range next {
		ov, ok := prev.Get(f)
		if !ok || ov == nv {
			continue
		}
		d[f] = Change{Old: ov, New: nv}
	}
	return d
}

// Merge returns prev overwritten with every field of next. Fields missing from
// next keep their previous value.
func Merge(prev, next Reading) Reading {
	out := prev.Clone()
	for f, v := range next {
		out[f] = v
	}
	return out
}
