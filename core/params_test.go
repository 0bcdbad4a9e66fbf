package core

import (
	"encoding/json"
	"testing"
)

func TestParamsTypedGets(t *testing.T) {
	ps := NewParams().
		Set("who", "homer").
		Set("n", 4.0).
		Set("happy", true).
		Set("tags", []interface{}{"a", "b"}).
		Set("nested", map[string]interface{}{"x": 1.0})

	if s := ps.GetString("who", "nobody"); s != "homer" {
		t.Fatal(s)
	}
	if s := ps.GetString("missing", "nobody"); s != "nobody" {
		t.Fatal(s)
	}
	// Wrong type also falls back to the default.
	if s := ps.GetString("n", "nobody"); s != "nobody" {
		t.Fatal(s)
	}
	if n := ps.GetFloat64("n", -1); n != 4.0 {
		t.Fatal(n)
	}
	if n := ps.GetInt("n", -1); n != 4 {
		t.Fatal(n)
	}
	if !ps.GetBool("happy", false) {
		t.Fatal("unhappy")
	}
	if xs := ps.GetSlice("tags", nil); len(xs) != 2 {
		t.Fatal(xs)
	}
	if m := ps.GetMap("nested", nil); m["x"] != 1.0 {
		t.Fatal(m)
	}
}

func TestParamsRequire(t *testing.T) {
	ps := NewParams().Set("who", "homer").Set("n", 4.0)

	if _, err := ps.RequireString("who"); err != nil {
		t.Fatal(err)
	}

	_, err := ps.RequireString("missing")
	if err == nil {
		t.Fatal("should have complained")
	}
	if _, is := err.(*MissingParam); !is {
		t.Fatalf("wrong error type %T", err)
	}

	_, err = ps.RequireString("n")
	if _, is := err.(*WrongType); !is {
		t.Fatalf("wrong error type %T", err)
	}

	if n, err := ps.RequireFloat64("n"); err != nil || n != 4.0 {
		t.Fatal(n, err)
	}
}

func TestParamsOrder(t *testing.T) {
	ps := NewParams()
	keys := []string{"z", "a", "m", "b"}
	for i, k := range keys {
		ps.Set(k, float64(i))
	}

	// Replacing a value keeps the key's position.
	ps.Set("a", 42.0)

	got := ps.Keys()
	for i, k := range keys {
		if got[i] != k {
			t.Fatalf("key %d: wanted %s, got %s", i, k, got[i])
		}
	}
}

func TestParamsJSONRoundTrip(t *testing.T) {
	ps := NewParams().
		Set("z", "last-first").
		Set("a", 1.0).
		Set("nested", map[string]interface{}{"deep": true})

	js, err := json.Marshal(ps)
	if err != nil {
		t.Fatal(err)
	}

	want := `{"z":"last-first","a":1,"nested":{"deep":true}}`
	if string(js) != want {
		t.Fatalf("wanted %s, got %s", want, js)
	}

	var back Params
	if err := json.Unmarshal(js, &back); err != nil {
		t.Fatal(err)
	}
	if s := back.GetString("z", ""); s != "last-first" {
		t.Fatal(s)
	}
	if n := back.GetFloat64("a", -1); n != 1.0 {
		t.Fatal(n)
	}
	got := back.Keys()
	if len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != "nested" {
		t.Fatalf("order lost: %v", got)
	}
}

func TestParamsDel(t *testing.T) {
	ps := NewParams().Set("a", 1).Set("b", 2).Set("c", 3)
	ps.Del("b")
	got := ps.Keys()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatal(got)
	}
	ps.Del("never-there")
	if ps.Len() != 2 {
		t.Fatal(ps.Len())
	}
}

func TestParamsNil(t *testing.T) {
	var ps *Params
	if s := ps.GetString("anything", "def"); s != "def" {
		t.Fatal(s)
	}
	if ps.Len() != 0 {
		t.Fatal("nil Params should be empty")
	}
}
