package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestTopologicalOrder(t *testing.T) {
	plan := &ExecutionPlan{Stages: []Stage{
		{Name: "contracts", DependsOn: []string{"company"}},
		{Name: "company"},
		{Name: "biddings", DependsOn: []string{"contracts"}},
		{Name: "sanctions"},
	}}

	order, err := plan.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v", err)
	}

	want := []string{"company", "sanctions", "contracts", "biddings"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestTopologicalOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"cycle", []Stage{{Name: "a", DependsOn: []string{"b"}}, {Name: "b", DependsOn: []string{"a"}}}},
		{"self", []Stage{{Name: "a", DependsOn: []string{"a"}}}},
		{"unknown dependency", []Stage{{Name: "a", DependsOn: []string{"missing"}}}},
		{"duplicate", []Stage{{Name: "a"}, {Name: "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &ExecutionPlan{Stages: tt.stages}
			if _, err := plan.TopologicalOrder(); !errors.Is(err, ErrPlanning) {
				t.Errorf("expected ErrPlanning, got %v", err)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.234.567,89", 1234567.89, true},
		{"R$ 2,5", 2.5, true},
		{"1234567.89", 1234567.89, true},
		{"1,234,567.89", 1234567.89, true},
		{"1.500", 1500, true},
		{"1.000.000", 1000000, true},
		{"42", 42, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAmount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDuration_JSON(t *testing.T) {
	b, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1m30s"` {
		t.Errorf("unexpected encoding %s", b)
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"30s"`), &d); err != nil || time.Duration(d) != 30*time.Second {
		t.Errorf("string decode: %v %v", d, err)
	}
	if err := json.Unmarshal([]byte(`1000000000`), &d); err != nil || time.Duration(d) != time.Second {
		t.Errorf("integer decode: %v %v", d, err)
	}
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Error("expected error for boolean duration")
	}
}

func TestRecord_Accessors(t *testing.T) {
	r := Record{
		KeyCNPJ:  "12345678000190",
		KeyValue: "1.500,00",
		"count":  float64(3),
		KeyPartners: []any{
			map[string]any{KeyName: "Ana"},
			Record{KeyName: "Bruno"},
			"ignored",
		},
	}

	if r.String(KeyCNPJ) != "12345678000190" {
		t.Errorf("unexpected cnpj %q", r.String(KeyCNPJ))
	}
	if v := r.Float(KeyValue); v != 1500 {
		t.Errorf("expected 1500, got %v", v)
	}
	if v := r.Float("count"); v != 3 {
		t.Errorf("expected 3, got %v", v)
	}
	if v := r.Float("missing"); v != 0 {
		t.Errorf("expected 0 for missing key, got %v", v)
	}
	if got := r.Records(KeyPartners); len(got) != 2 {
		t.Errorf("expected 2 partner records, got %d", len(got))
	}
}

func TestInvestigationResult_RoundTrip(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := InvestigationResult{
		ID:     "inv-1",
		Query:  "contratos",
		Status: InvestigationCompleted,
		Intent: IntentContractAnomaly,
		StageResults: []StageResult{
			{Name: "search_contracts", Status: StageSuccess},
			{Name: "company_lookup", Status: StagePartialSuccess},
			{Name: "anomaly_analysis", Status: StageSuccess},
		},
		Entities: []Entity{
			{ID: "company:12345678000190", Type: EntityCompany},
			{ID: "contract:CT-1", Type: EntityContract},
		},
		Relationships: []EntityRelationship{
			{ID: "rel-1", SourceID: "company:12345678000190", TargetID: "contract:CT-1", Type: RelAwardedContract},
		},
		StartedAt: started,
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out InvestigationResult
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}

	for i := range in.StageResults {
		if out.StageResults[i].Name != in.StageResults[i].Name {
			t.Errorf("stage %d: expected %s, got %s", i, in.StageResults[i].Name, out.StageResults[i].Name)
		}
	}
	for i := range in.Entities {
		if out.Entities[i].ID != in.Entities[i].ID {
			t.Errorf("entity %d: expected %s, got %s", i, in.Entities[i].ID, out.Entities[i].ID)
		}
	}
	if out.Relationships[0].ID != "rel-1" {
		t.Errorf("relationship id lost: %+v", out.Relationships)
	}
	if !out.StartedAt.Equal(started) {
		t.Errorf("started_at lost: %v", out.StartedAt)
	}
}

func TestParseIntent(t *testing.T) {
	if i, ok := ParseIntent(" Supplier_Investigation "); !ok || i != IntentSupplierInvestigation {
		t.Errorf("expected supplier_investigation, got %v %v", i, ok)
	}
	if _, ok := ParseIntent("weather"); ok {
		t.Error("unknown intent should not parse")
	}
}
