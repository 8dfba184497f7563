package policy

import "testing"

func TestIsValidCategory(t *testing.T) {
	for _, c := range ValidCategories() {
		if !IsValidCategory(c) {
			t.Fatalf("expected %q to be valid", c)
		}
	}
	if !IsValidCategory("  kernerinnerungen ") {
		t.Fatalf("expected surrounding whitespace to be tolerated")
	}
	for _, c := range []string{"", "unknown", "programmieren", "philosophie", "KERNERINNERUNGEN"} {
		if IsValidCategory(c) {
			t.Fatalf("expected %q to be invalid at the ingest boundary", c)
		}
	}
}

func TestParseAnalyzedType(t *testing.T) {
	got, ok := ParseAnalyzedType(" Faktenwissen ")
	if !ok || got != TypeFaktenwissen {
		t.Fatalf("parse faktenwissen: want=(%q,true) got=(%q,%v)", TypeFaktenwissen, got, ok)
	}
	if _, ok := ParseAnalyzedType("weltwissen"); ok {
		t.Fatalf("expected unknown type to fail parsing")
	}
	if _, ok := ParseAnalyzedType(""); ok {
		t.Fatalf("expected empty type to fail parsing")
	}
}

func TestIsFactual(t *testing.T) {
	if !IsFactual(TypeFaktenwissen) || !IsFactual(TypeProzeduralesWissen) {
		t.Fatalf("expected factual types to be factual")
	}
	for _, typ := range []AnalyzedType{TypeErlebnisse, TypeBewusstsein, TypeHumor, TypeZusammenarbeit} {
		if IsFactual(typ) {
			t.Fatalf("expected %q to be non-factual", typ)
		}
	}
}

func TestMapToStorage(t *testing.T) {
	cases := map[AnalyzedType]string{
		TypeFaktenwissen:       CategoryKern,
		TypeProzeduralesWissen: CategoryProgrammieren,
		TypeErlebnisse:         CategoryKern,
		TypeBewusstsein:        CategoryPhilosophie,
		TypeHumor:              CategoryHumor,
		TypeZusammenarbeit:     CategoryZusammenarbeit,
	}
	for typ, want := range cases {
		if got := MapToStorage(typ); got != want {
			t.Fatalf("MapToStorage(%q): want=%q got=%q", typ, want, got)
		}
	}
	if got := MapToStorage(AnalyzedType("unbekannt")); got != CategoryKern {
		t.Fatalf("MapToStorage(unknown): want=%q got=%q", CategoryKern, got)
	}
}
