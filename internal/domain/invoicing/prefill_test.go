package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubRecords struct {
	rx  map[uuid.UUID]*Prescription
	err error
}

func newStubRecords() *stubRecords {
	return &stubRecords{rx: make(map[uuid.UUID]*Prescription)}
}

func (s *stubRecords) LatestPrescription(_ context.Context, patientID uuid.UUID) (*Prescription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rx[patientID], nil
}

type stubCatalog struct {
	pharmacy map[uuid.UUID]decimal.Decimal
	labs     map[uuid.UUID]decimal.Decimal
	err      error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		pharmacy: make(map[uuid.UUID]decimal.Decimal),
		labs:     make(map[uuid.UUID]decimal.Decimal),
	}
}

func (s *stubCatalog) PharmacyPrice(_ context.Context, id uuid.UUID) (decimal.Decimal, bool, error) {
	if s.err != nil {
		return decimal.Zero, false, s.err
	}
	p, ok := s.pharmacy[id]
	return p, ok, nil
}

func (s *stubCatalog) LabTestPrice(_ context.Context, id uuid.UUID) (decimal.Decimal, bool, error) {
	if s.err != nil {
		return decimal.Zero, false, s.err
	}
	p, ok := s.labs[id]
	return p, ok, nil
}

type prefillFixture struct {
	patient     uuid.UUID
	clinician   uuid.UUID
	paracetamol uuid.UUID
	amoxicillin uuid.UUID
	cbc         uuid.UUID
	fees        *stubFeeSchedule
	records     *stubRecords
	catalog     *stubCatalog
}

func newPrefillFixture() *prefillFixture {
	f := &prefillFixture{
		patient:     uuid.New(),
		clinician:   uuid.New(),
		paracetamol: uuid.New(),
		amoxicillin: uuid.New(),
		cbc:         uuid.New(),
		fees:        newStubFeeSchedule(),
		records:     newStubRecords(),
		catalog:     newStubCatalog(),
	}
	f.fees.fees[f.clinician] = dec("500")
	f.catalog.pharmacy[f.paracetamol] = dec("12.50")
	f.catalog.labs[f.cbc] = dec("350")
	f.records.rx[f.patient] = &Prescription{
		ID:          uuid.New(),
		PatientID:   f.patient,
		ClinicianID: &f.clinician,
		IssuedAt:    time.Now(),
		Medicines: []PrescribedMedicine{
			{ProductID: &f.paracetamol, Name: "Paracetamol 500mg"},
			{ProductID: &f.amoxicillin, Name: "Amoxicillin 250mg"},
			{ProductID: &f.paracetamol, Name: "Paracetamol 500mg"},
		},
		LabTests: []PrescribedLabTest{{LabTestID: &f.cbc, Name: "CBC"}},
	}
	return f
}

func (f *prefillFixture) merger() *PrefillMerger {
	return NewPrefillMerger(f.records, f.catalog, zerolog.Nop())
}

func (f *prefillFixture) draft() *Draft {
	return NewDraft(f.patient, NewFeeResolver(f.fees, zerolog.Nop()))
}

func TestPrefillMerger_Merge(t *testing.T) {
	f := newPrefillFixture()
	d := f.draft()

	out, err := f.merger().Merge(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PrescriptionID == nil {
		t.Error("expected prescription id in outcome")
	}
	if out.ItemsAdded != 3 {
		t.Errorf("expected 3 rows added, got %d", out.ItemsAdded)
	}
	if d.ClinicianID == nil || *d.ClinicianID != f.clinician {
		t.Error("expected prescription clinician to become the draft clinician")
	}

	items := d.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(items))
	}
	para := items[0]
	if para.Kind != KindPharmacyProduct || para.Quantity != 2 {
		t.Errorf("expected repeated medicine to collapse to quantity 2, got %s x%d", para.Kind, para.Quantity)
	}
	assertAmount(t, "paracetamol price", para.UnitPrice, "12.50")
	assertAmount(t, "unpriced medicine", items[1].UnitPrice, "0")
	if items[2].Kind != KindLabTest {
		t.Errorf("expected lab row last, got %s", items[2].Kind)
	}
	assertAmount(t, "lab price", items[2].UnitPrice, "350")
	for _, li := range items {
		if !li.PriceIsDefaulted {
			t.Errorf("prefilled row %q should carry a default price", li.Description)
		}
	}
}

func TestPrefillMerger_RecordFailureYieldsEmptyDraft(t *testing.T) {
	f := newPrefillFixture()
	f.records.err = errors.New("records timeout")
	d := f.draft()

	out, err := f.merger().Merge(context.Background(), d)
	if err != nil {
		t.Fatalf("lookup failure must not surface, got %v", err)
	}
	if out.ItemsAdded != 0 || out.PrescriptionID != nil || d.ClinicianID != nil {
		t.Errorf("expected empty outcome, got %+v", out)
	}
	if len(d.Items()) != 0 {
		t.Errorf("expected no rows, got %d", len(d.Items()))
	}
}

func TestPrefillMerger_NoPrescription(t *testing.T) {
	f := newPrefillFixture()
	d := NewDraft(uuid.New(), NewFeeResolver(f.fees, zerolog.Nop()))

	out, err := f.merger().Merge(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PrescriptionID != nil || len(d.Items()) != 0 {
		t.Errorf("expected nothing merged, got %+v", out)
	}
}

func TestPrefillMerger_CatalogFailureDefaultsToZero(t *testing.T) {
	f := newPrefillFixture()
	f.catalog.err = errors.New("catalog unavailable")
	d := f.draft()

	if _, err := f.merger().Merge(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Items()) != 3 {
		t.Fatalf("expected rows despite catalog failure, got %d", len(d.Items()))
	}
	for _, li := range d.Items() {
		assertAmount(t, li.Description, li.UnitPrice, "0")
	}
}

func TestPrefillMerger_RejectsEditDraft(t *testing.T) {
	f := newPrefillFixture()
	st := EditState{PatientID: f.patient, Discount: NoDiscount}
	d := st.Draft(NewFeeResolver(f.fees, zerolog.Nop()))

	_, err := f.merger().Merge(context.Background(), d)
	if !IsState(err) {
		t.Errorf("expected StateError, got %v", err)
	}
}

func TestPrefillMerger_RefreshesDefaultedConsultation(t *testing.T) {
	f := newPrefillFixture()
	d := f.draft()
	if _, err := d.AddItem(context.Background(), ItemInput{Kind: KindConsultation}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "before prefill", d.Items()[0].UnitPrice, "0")

	if _, err := f.merger().Merge(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "after prefill", d.Items()[0].UnitPrice, "500")
}
