package repository

import (
	"reflect"
	"testing"
)

func TestStripNilValues(t *testing.T) {
	t.Run("top level nils removed", func(t *testing.T) {
		got := StripNilValues(map[string]interface{}{
			"name":    "Maple St",
			"address": nil,
		})
		want := map[string]interface{}{"name": "Maple St"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("nested maps and slices cleaned recursively", func(t *testing.T) {
		got := StripNilValues(map[string]interface{}{
			"rooms": []interface{}{
				map[string]interface{}{"id": "r1", "note": nil},
				nil,
			},
			"meta": map[string]interface{}{
				"a": nil,
				"b": 2,
			},
		})
		want := map[string]interface{}{
			"rooms": []interface{}{
				map[string]interface{}{"id": "r1"},
			},
			"meta": map[string]interface{}{"b": 2},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("false and zero values survive", func(t *testing.T) {
		got := StripNilValues(map[string]interface{}{
			"verified": false,
			"count":    0,
			"name":     "",
		})
		if len(got) != 3 {
			t.Errorf("expected zero values to be kept, got %v", got)
		}
	})
}

func TestNewStudyRepositoryNotConfigured(t *testing.T) {
	if _, err := NewStudyRepository(nil); err == nil {
		t.Fatal("expected configuration error for nil db")
	}
}
