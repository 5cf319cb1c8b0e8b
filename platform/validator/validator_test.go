package validator

import "testing"

type createRequest struct {
	CompanyName string `json:"companyName" validate:"required"`
	TerritoryID string `json:"territoryId" validate:"required,territory"`
}

func TestTerritoryTag(t *testing.T) {
	v := New()
	for _, ok := range []string{"DE", "nl", "DE-BY"} {
		if err := v.Var(ok, "territory"); err != nil {
			t.Fatalf("expected %q to pass: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "D", "GERMANY", "DE_BY"} {
		if err := v.Var(bad, "territory"); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestFieldsUseJSONNames(t *testing.T) {
	err := New().Struct(createRequest{TerritoryID: "XYZ1"})
	fields := Fields(err)
	if fields["companyName"] != "required" || fields["territoryId"] != "territory" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if Fields(nil) != nil {
		t.Fatalf("nil error should have no fields")
	}
}
