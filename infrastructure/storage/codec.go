package storage

import (
	"fmt"
	"roomsync/contract"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// timestampKey marks a struct value holding a time: {"$ts": [seconds, nanos]}.
// Both parts fit a float64 exactly, unix nanos alone would not.
const timestampKey = "$ts"

// encodeFields resolves ServerTime placeholders against now and marshals
// the document into a protobuf Struct.
func encodeFields(fields contract.Fields, now time.Time) ([]byte, error) {
	st, err := toStruct(fields, now)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func decodeFields(data []byte) (contract.Fields, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return contract.Fields(fromStruct(&st)), nil
}

func toStruct(fields map[string]any, now time.Time) (*structpb.Struct, error) {
	st := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for k, v := range fields {
		value, err := toValue(v, now)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		st.Fields[k] = value
	}
	return st, nil
}

func toValue(v any, now time.Time) (*structpb.Value, error) {
	switch val := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case string:
		return structpb.NewStringValue(val), nil
	case bool:
		return structpb.NewBoolValue(val), nil
	case int:
		return structpb.NewNumberValue(float64(val)), nil
	case int64:
		return structpb.NewNumberValue(float64(val)), nil
	case float64:
		return structpb.NewNumberValue(val), nil
	case time.Time:
		return timeValue(val), nil
	case contract.ServerTime:
		return timeValue(now.Add(val.Offset)), nil
	case []string:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(val))}
		for _, s := range val {
			list.Values = append(list.Values, structpb.NewStringValue(s))
		}
		return structpb.NewListValue(list), nil
	case []any:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(val))}
		for _, item := range val {
			encoded, err := toValue(item, now)
			if err != nil {
				return nil, err
			}
			list.Values = append(list.Values, encoded)
		}
		return structpb.NewListValue(list), nil
	case contract.Fields:
		return toValue(map[string]any(val), now)
	case map[string]any:
		st, err := toStruct(val, now)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(st), nil
	case map[string]time.Time:
		nested := make(map[string]any, len(val))
		for k, t := range val {
			nested[k] = t
		}
		return toValue(nested, now)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func timeValue(t time.Time) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		timestampKey: structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewNumberValue(float64(t.Unix())),
			structpb.NewNumberValue(float64(t.Nanosecond())),
		}}),
	}})
}

func fromStruct(st *structpb.Struct) map[string]any {
	out := make(map[string]any, len(st.GetFields()))
	for k, v := range st.GetFields() {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *structpb.Value) any {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_BoolValue:
		return kind.BoolValue
	case *structpb.Value_NumberValue:
		return kind.NumberValue
	case *structpb.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			items = append(items, fromValue(item))
		}
		return items
	case *structpb.Value_StructValue:
		if t, ok := asTimestamp(kind.StructValue); ok {
			return t
		}
		return fromStruct(kind.StructValue)
	default:
		return nil
	}
}

func asTimestamp(st *structpb.Struct) (time.Time, bool) {
	if len(st.GetFields()) != 1 {
		return time.Time{}, false
	}
	raw, ok := st.GetFields()[timestampKey]
	if !ok {
		return time.Time{}, false
	}
	parts := raw.GetListValue().GetValues()
	if len(parts) != 2 {
		return time.Time{}, false
	}
	return time.Unix(int64(parts[0].GetNumberValue()), int64(parts[1].GetNumberValue())).UTC(), true
}

// normalize gives a caller supplied value the shape it has once stored,
// so filters compare like with like.
func normalize(v any, now time.Time) (any, error) {
	encoded, err := toValue(v, now)
	if err != nil {
		return nil, err
	}
	return fromValue(encoded), nil
}
