package trigger

import (
	"fmt"
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

// WrittenEventType is the CloudEvent type of a Firestore document write.
const WrittenEventType = "google.cloud.firestore.document.v1.written"

// ChangeFromEvent decodes a document write CloudEvent. Protobuf payloads are
// what Cloud Functions delivers; JSON is accepted for emulators.
func ChangeFromEvent(e event.Event) (Change, error) {
	var data firestoredata.DocumentEventData
	raw := e.Data()
	if len(raw) > 0 {
		var err error
		if strings.Contains(e.DataContentType(), "json") {
			err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(raw, &data)
		} else {
			err = proto.Unmarshal(raw, &data)
		}
		if err != nil {
			return Change{}, fmt.Errorf("decode document event %s: %w", e.ID(), err)
		}
	}
	path := documentPath(e.Subject(), &data)
	if path == "" {
		return Change{}, fmt.Errorf("document event %s names no document", e.ID())
	}
	return Change{
		Path:   path,
		Before: documentFields(data.GetOldValue()),
		After:  documentFields(data.GetValue()),
	}, nil
}

func documentPath(subject string, data *firestoredata.DocumentEventData) string {
	if p, ok := strings.CutPrefix(subject, "documents/"); ok && p != "" {
		return p
	}
	for _, doc := range []*firestoredata.Document{data.GetValue(), data.GetOldValue()} {
		if _, p, ok := strings.Cut(doc.GetName(), "/documents/"); ok && p != "" {
			return p
		}
	}
	return ""
}

// documentFields converts a snapshot into plain values. A nil document is
// an absent snapshot and yields nil.
func documentFields(doc *firestoredata.Document) map[string]any {
	if doc == nil {
		return nil
	}
	return fieldsToMap(doc.GetFields())
}

func fieldsToMap(fields map[string]*firestoredata.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *firestoredata.Value) any {
	if v == nil {
		return nil
	}
	switch x := v.GetValueType().(type) {
	case *firestoredata.Value_BooleanValue:
		return x.BooleanValue
	case *firestoredata.Value_IntegerValue:
		return x.IntegerValue
	case *firestoredata.Value_DoubleValue:
		return x.DoubleValue
	case *firestoredata.Value_TimestampValue:
		return x.TimestampValue.AsTime()
	case *firestoredata.Value_StringValue:
		return x.StringValue
	case *firestoredata.Value_BytesValue:
		return x.BytesValue
	case *firestoredata.Value_ReferenceValue:
		return referenceOf(x.ReferenceValue)
	case *firestoredata.Value_GeoPointValue:
		return &latlng.LatLng{
			Latitude:  x.GeoPointValue.GetLatitude(),
			Longitude: x.GeoPointValue.GetLongitude(),
		}
	case *firestoredata.Value_ArrayValue:
		values := x.ArrayValue.GetValues()
		out := make([]any, len(values))
		for i, el := range values {
			out[i] = valueToAny(el)
		}
		return out
	case *firestoredata.Value_MapValue:
		return fieldsToMap(x.MapValue.GetFields())
	default:
		return nil
	}
}

// referenceOf trims a full resource name down to the document path.
func referenceOf(name string) store.Reference {
	if _, p, ok := strings.Cut(name, "/documents/"); ok {
		return store.Reference{Path: p}
	}
	return store.Reference{Path: name}
}
