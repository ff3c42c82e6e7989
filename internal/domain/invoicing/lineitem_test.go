package invoicing

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestItemList_PharmacyDedupByCatalogRef(t *testing.T) {
	var l ItemList
	ref := uuid.New()
	for i := 0; i < 2; i++ {
		li := item(KindPharmacyProduct, 1, "12.50")
		li.CatalogRef = &ref
		if _, err := l.Add(li); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", l.Len())
	}
	if q := l.Items()[0].Quantity; q != 2 {
		t.Errorf("expected quantity 2, got %d", q)
	}
}

func TestItemList_ManualItemsAlwaysAppend(t *testing.T) {
	var l ItemList
	for i := 0; i < 2; i++ {
		li := item(KindOther, 1, "5")
		li.Description = "Dressing"
		if _, err := l.Add(li); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", l.Len())
	}
	items := l.Items()
	if items[0].ID == items[1].ID {
		t.Error("expected distinct ids for separate rows")
	}
}

func TestItemList_LabTestsDoNotDedup(t *testing.T) {
	var l ItemList
	ref := uuid.New()
	for i := 0; i < 2; i++ {
		li := item(KindLabTest, 1, "300")
		li.CatalogRef = &ref
		if _, err := l.Add(li); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 lab rows, got %d", l.Len())
	}
}

func TestItemList_AddRejects(t *testing.T) {
	ref := uuid.New()
	consult := item(KindConsultation, 1, "10")
	consult.CatalogRef = &ref

	tests := []struct {
		name string
		li   LineItem
	}{
		{"zero quantity", item(KindOther, 0, "10")},
		{"negative quantity", item(KindOther, -2, "10")},
		{"negative price", item(KindOther, 1, "-0.01")},
		{"sub-cent price", item(KindOther, 1, "1.005")},
		{"catalog ref on consultation", consult},
		{"unknown kind", item("", 1, "10")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l ItemList
			if _, err := l.Add(tt.li); !IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
			if l.Len() != 0 {
				t.Errorf("rejected item was stored")
			}
		})
	}
}

func TestItemList_DefaultDescription(t *testing.T) {
	var l ItemList
	li := item(KindLabTest, 1, "10")
	li.Description = "   "
	got, err := l.Add(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Description != "Lab test" {
		t.Errorf("expected default description, got %q", got.Description)
	}
}

func TestItemList_UpdatePriceClearsDefault(t *testing.T) {
	var l ItemList
	li := item(KindConsultation, 1, "300")
	li.PriceIsDefaulted = true
	added, _ := l.Add(li)

	price := dec("250")
	got, err := l.Update(added.ID, ItemUpdate{UnitPrice: &price})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PriceIsDefaulted {
		t.Error("expected manual price to clear the default flag")
	}
	assertAmount(t, "unit price", l.Items()[0].UnitPrice, "250")

	qty := 3
	got, err = l.Update(added.ID, ItemUpdate{Quantity: &qty})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "line amount", got.LineAmount(), "750")
}

func TestItemList_UpdateInvalidKeepsRow(t *testing.T) {
	var l ItemList
	added, _ := l.Add(item(KindOther, 2, "10"))

	zero := 0
	if _, err := l.Update(added.ID, ItemUpdate{Quantity: &zero}); !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if q := l.Items()[0].Quantity; q != 2 {
		t.Errorf("expected quantity to stay 2, got %d", q)
	}
	if _, err := l.Update(uuid.New(), ItemUpdate{Quantity: &zero}); !IsValidation(err) {
		t.Errorf("expected ValidationError for unknown id, got %v", err)
	}
}

func TestItemList_Remove(t *testing.T) {
	var l ItemList
	a, _ := l.Add(item(KindOther, 1, "1"))
	b, _ := l.Add(item(KindOther, 1, "2"))

	if err := l.Remove(a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Len() != 1 || l.Items()[0].ID != b.ID {
		t.Errorf("expected only %s to remain", b.ID)
	}
	if err := l.Remove(a.ID); !IsValidation(err) {
		t.Errorf("expected ValidationError removing twice, got %v", err)
	}
}

func TestLineItem_MarshalJSON(t *testing.T) {
	li := item(KindPharmacyProduct, 3, "2.50")
	data, err := json.Marshal(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"line_amount":"7.5"`) {
		t.Errorf("expected derived line_amount in %s", data)
	}
	if !strings.Contains(string(data), `"kind":"PHARMACY_PRODUCT"`) {
		t.Errorf("expected kind in %s", data)
	}
}

func TestDeriveInvoiceKind(t *testing.T) {
	tests := []struct {
		name  string
		kinds []ItemKind
		want  InvoiceKind
	}{
		{"empty", nil, InvoiceMixed},
		{"consultation", []ItemKind{KindConsultation, KindConsultation}, InvoiceConsultation},
		{"pharmacy", []ItemKind{KindPharmacyProduct}, InvoicePharmacy},
		{"lab", []ItemKind{KindLabTest}, InvoiceLabTest},
		{"other only", []ItemKind{KindOther}, InvoiceMixed},
		{"mixed", []ItemKind{KindConsultation, KindLabTest}, InvoiceMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []LineItem
			for _, k := range tt.kinds {
				items = append(items, item(k, 1, "1"))
			}
			if got := DeriveInvoiceKind(items); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
