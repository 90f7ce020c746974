package session

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/hupe1980/taskmesh/core"
)

// Tool call arguments are persisted as CBOR rather than JSON: JSON cannot
// tell an integral double from an int, and the registry's kind check depends
// on that distinction surviving a round trip.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("session: CBOR decoder initialization failed: " + err.Error())
	}
}

type wireValue struct {
	Kind       uint8                `cbor:"k"`
	Str        string               `cbor:"s,omitempty"`
	Int        int64                `cbor:"i,omitempty"`
	Double     float64              `cbor:"f,omitempty"`
	Bool       bool                 `cbor:"b,omitempty"`
	StringList []string             `cbor:"ss,omitempty"`
	List       []wireValue          `cbor:"l,omitempty"`
	StringMap  map[string]string    `cbor:"sm,omitempty"`
	Map        map[string]wireValue `cbor:"m,omitempty"`
}

type wireToolCall struct {
	Name      string               `cbor:"name"`
	Arguments map[string]wireValue `cbor:"args,omitempty"`
}

func toWire(v core.Value) wireValue {
	w := wireValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case core.KindString:
		w.Str, _ = v.AsString()
	case core.KindInt:
		w.Int, _ = v.AsInt()
	case core.KindDouble:
		w.Double, _ = v.AsDouble()
	case core.KindBool:
		w.Bool, _ = v.AsBool()
	case core.KindStringList:
		w.StringList, _ = v.AsStringList()
	case core.KindList:
		items, _ := v.AsList()
		w.List = make([]wireValue, len(items))
		for i, e := range items {
			w.List[i] = toWire(e)
		}
	case core.KindStringMap:
		w.StringMap, _ = v.AsStringMap()
	case core.KindMap:
		m, _ := v.AsMap()
		w.Map = make(map[string]wireValue, len(m))
		for k, e := range m {
			w.Map[k] = toWire(e)
		}
	}
	return w
}

func fromWire(w wireValue) (core.Value, error) {
	switch core.Kind(w.Kind) {
	case core.KindString:
		return core.String(w.Str), nil
	case core.KindInt:
		return core.Int(w.Int), nil
	case core.KindDouble:
		return core.Double(w.Double), nil
	case core.KindBool:
		return core.Bool(w.Bool), nil
	case core.KindStringList:
		return core.StringList(w.StringList...), nil
	case core.KindList:
		items := make([]core.Value, len(w.List))
		for i, e := range w.List {
			v, err := fromWire(e)
			if err != nil {
				return core.Value{}, err
			}
			items[i] = v
		}
		return core.List(items...), nil
	case core.KindStringMap:
		return core.StringMap(w.StringMap), nil
	case core.KindMap:
		m := make(map[string]core.Value, len(w.Map))
		for k, e := range w.Map {
			v, err := fromWire(e)
			if err != nil {
				return core.Value{}, err
			}
			m[k] = v
		}
		return core.Map(m), nil
	}
	return core.Value{}, fmt.Errorf("unknown value kind %d", w.Kind)
}

// encodeToolCall returns nil for a nil tool call so the column stays NULL.
func encodeToolCall(tc *core.ToolCall) ([]byte, error) {
	if tc == nil {
		return nil, nil
	}
	w := wireToolCall{Name: tc.Name, Arguments: make(map[string]wireValue, len(tc.Arguments))}
	for k, v := range tc.Arguments {
		w.Arguments[k] = toWire(v)
	}
	return encMode.Marshal(w)
}

func decodeToolCall(data []byte) (*core.ToolCall, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var w wireToolCall
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	tc := &core.ToolCall{Name: w.Name, Arguments: make(map[string]core.Value, len(w.Arguments))}
	for k, e := range w.Arguments {
		v, err := fromWire(e)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		tc.Arguments[k] = v
	}
	return tc, nil
}
