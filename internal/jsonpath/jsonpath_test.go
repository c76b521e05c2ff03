package jsonpath

import (
	"errors"
	"testing"
)

const doc = `{
	"user": {"name": "ada", "tags": ["a", "b"]},
	"items": [{"id": 7, "url": "/files/7"}, {"id": 8, "url": "/files/8"}],
	"nothing": null
}`

func TestToGjson(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"$", "@this"},
		{"$.", "@this"},
		{"$.user.name", "user.name"},
		{"$['user']['name']", "user.name"},
		{`$["user"]`, "user"},
		{"$.items[1].url", "items.1.url"},
		{"$[0]", "0"},
		{"user.name", "user.name"},
		{"items.#.id", "items.#.id"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ToGjson(tt.path); got != tt.want {
				t.Errorf("ToGjson(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"nested key", "$.user.name", "ada", nil},
		{"array index", "$.items[0].id", "7", nil},
		{"gjson syntax", "items.1.url", "/files/8", nil},
		{"null value", "$.nothing", "null", nil},
		{"missing", "$.user.age", "", ErrNotFound},
		{"empty path", "", "", ErrEmptyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(doc), tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	if _, err := Extract(nil, "$.a"); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Extract(nil) error = %v, want ErrEmptyDocument", err)
	}
}

func TestExtractAll(t *testing.T) {
	values, err := ExtractAll([]byte(doc), map[string]string{
		"name":    "$.user.name",
		"first":   "$.items[0].url",
		"missing": "$.nope",
	})
	if err == nil {
		t.Fatal("ExtractAll() expected error for missing path")
	}
	if values["name"] != "ada" || values["first"] != "/files/7" {
		t.Errorf("ExtractAll() = %v", values)
	}
	if _, ok := values["missing"]; ok {
		t.Error("ExtractAll() should not contain unresolved keys")
	}
}

func TestGet_Array(t *testing.T) {
	result, err := Get([]byte(doc), "$.user.tags")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if n := len(result.Array()); n != 2 {
		t.Errorf("len(Array()) = %d, want 2", n)
	}
}
