package mirror

import (
	"reflect"
	"testing"
)

type row struct {
	ID   string
	Name string
}

func newRows() *Collection[row] {
	return New(func(r row) string { return r.ID })
}

func ids(c *Collection[row]) []string {
	var out []string
	for _, r := range c.Items() {
		out = append(out, r.ID)
	}
	return out
}

func TestApply_InsertPrependsOnce(t *testing.T) {
	c := newRows()

	if !c.Apply(Event[row]{Op: Insert, Item: row{ID: "a"}}) {
		t.Fatal("first insert should report a change")
	}
	c.Apply(Event[row]{Op: Insert, Item: row{ID: "b"}})

	if got, want := ids(c), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}

	// Duplicate delivery of the same INSERT leaves the collection unchanged.
	before := c.Items()
	if c.Apply(Event[row]{Op: Insert, Source: Remote, Item: row{ID: "a"}}) {
		t.Error("duplicate insert should not report a change")
	}
	if !reflect.DeepEqual(c.Items(), before) {
		t.Errorf("items changed after duplicate insert: %v", c.Items())
	}
}

func TestApply_UpdateAndDelete(t *testing.T) {
	c := newRows()
	c.Replace([]row{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}})

	tests := []struct {
		name    string
		ev      Event[row]
		changed bool
		want    []row
	}{
		{
			name:    "update present",
			ev:      Event[row]{Op: Update, Item: row{ID: "b", Name: "Robert"}},
			changed: true,
			want:    []row{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Robert"}},
		},
		{
			name: "update absent is ignored",
			ev:   Event[row]{Op: Update, Item: row{ID: "z", Name: "Zed"}},
			want: []row{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Robert"}},
		},
		{
			name:    "delete present",
			ev:      Event[row]{Op: Delete, Item: row{ID: "a"}},
			changed: true,
			want:    []row{{ID: "b", Name: "Robert"}},
		},
		{
			name: "delete absent is ignored",
			ev:   Event[row]{Op: Delete, Item: row{ID: "a"}},
			want: []row{{ID: "b", Name: "Robert"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Apply(tt.ev); got != tt.changed {
				t.Errorf("Apply() = %v, want %v", got, tt.changed)
			}
			if !reflect.DeepEqual(c.Items(), tt.want) {
				t.Errorf("items = %v, want %v", c.Items(), tt.want)
			}
		})
	}
}

func TestItems_ReturnsCopy(t *testing.T) {
	c := newRows()
	c.Replace([]row{{ID: "a", Name: "Alice"}})

	items := c.Items()
	items[0].Name = "mutated"

	if got, _ := c.Get("a"); got.Name != "Alice" {
		t.Errorf("Items() leaked internal storage: %q", got.Name)
	}
}

func TestApply_LateInsertAfterDeleteIsIgnored(t *testing.T) {
	c := newRows()
	c.Apply(Event[row]{Op: Insert, Item: row{ID: "a"}})
	c.Apply(Event[row]{Op: Delete, Item: row{ID: "a"}})

	if c.Apply(Event[row]{Op: Insert, Source: Remote, Item: row{ID: "a"}}) {
		t.Error("echo of an insert for a deleted id should be ignored")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}

	// A fresh fetch is authoritative again.
	c.Replace([]row{{ID: "a"}})
	if !c.Has("a") {
		t.Error("Replace should restore a previously deleted id")
	}
}
