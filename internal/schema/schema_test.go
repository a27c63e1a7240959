package schema

import "testing"

func TestCanonicalTextPreservesCaseAndOrder(t *testing.T) {
	desc := Description{Tables: []Table{
		{Name: "Employees", Columns: []string{"ID", "Name", "Salary"}},
		{Name: "departments", Columns: []string{"id", "title"}},
	}}

	want := "Table: Employees\nColumns: ID, Name, Salary\n\nTable: departments\nColumns: id, title"
	if got := desc.CanonicalText(); got != want {
		t.Fatalf("CanonicalText() = %q, want %q", got, want)
	}
}

func TestCanonicalTextEmpty(t *testing.T) {
	var desc Description
	if got := desc.CanonicalText(); got != "" {
		t.Fatalf("CanonicalText() = %q, want empty", got)
	}
	if !desc.Empty() {
		t.Fatal("Empty() = false, want true")
	}
}
