package utils

import (
	"encoding/json"
	"testing"
)

func TestOrderedKVMapMarshalFollowsOrder(t *testing.T) {
	m := OrderedKVMap[any]{
		"b": {Value: 2, Order: 1},
		"a": {Value: "x", Order: 2},
		"c": {Value: nil, Order: 0},
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `{"c":null,"b":2,"a":"x"}` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestOrderedKVMapUnmarshalKeepsDocumentOrder(t *testing.T) {
	var m OrderedKVMap[any]
	if err := json.Unmarshal([]byte(`{"z":[{"name":"oak"}],"y":1,"x":null}`), &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "y" || keys[2] != "x" {
		t.Fatalf("unexpected key order %v", keys)
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `{"z":[{"name":"oak"}],"y":1,"x":null}` {
		t.Fatalf("round trip changed the document: %s", out)
	}
}

func TestOrderedKVMapUnmarshalRejectsArray(t *testing.T) {
	var m OrderedKVMap[any]
	if err := json.Unmarshal([]byte(`[1,2]`), &m); err == nil {
		t.Fatalf("expected error for non-object input")
	}
}
