package supplier

import (
	"testing"

	"nouhin/internal"
	"nouhin/internal/util"
)

func roster() []internal.Supplier {
	return []internal.Supplier{
		{ID: 1, Code: util.StringPtr("YMD"), Name: "山田食品"},
		{ID: 2, Code: util.StringPtr("SKR"), Name: "さくら物産"},
		{ID: 3, Code: nil, Name: "Tanaka Trading"},
	}
}

func TestInferFromSegment(t *testing.T) {
	match := Infer([]string{"2024", "山田食品"}, "20240305_納品書.pdf", roster())
	if match.SupplierID == nil || *match.SupplierID != 1 {
		t.Fatalf("match = %+v, want supplier 1", match)
	}
	if match.InferredName == nil || *match.InferredName != "山田食品" {
		t.Fatalf("inferred name = %v", match.InferredName)
	}
}

func TestInferInnermostSegmentWins(t *testing.T) {
	match := Infer([]string{"山田食品", "さくら物産"}, "納品書.pdf", roster())
	if match.SupplierID == nil || *match.SupplierID != 2 {
		t.Fatalf("match = %+v, want innermost supplier 2", match)
	}
}

func TestInferNormalizedCodeMatch(t *testing.T) {
	match := Infer([]string{"ｙｍｄ"}, "納品書.pdf", roster())
	if match.SupplierID == nil || *match.SupplierID != 1 {
		t.Fatalf("match = %+v, want supplier 1 via full-width code", match)
	}
}

func TestInferPathBeatsFilenameFallback(t *testing.T) {
	// Segment matches supplier 1's code exactly; the file name contains
	// supplier 2's name. The path pass must win.
	match := Infer([]string{"YMD"}, "さくら物産_0305.csv", roster())
	if match.SupplierID == nil || *match.SupplierID != 1 {
		t.Fatalf("match = %+v, want path match supplier 1", match)
	}
}

func TestInferFilenameFallback(t *testing.T) {
	match := Infer([]string{"misc"}, "Tanaka-Trading_0305.xlsx", roster())
	if match.SupplierID == nil || *match.SupplierID != 3 {
		t.Fatalf("match = %+v, want filename fallback supplier 3", match)
	}
}

func TestInferNoMatchGivesHintOnly(t *testing.T) {
	match := Infer([]string{"misc"}, "さくら_0305.csv", roster())
	if match.SupplierID != nil {
		t.Fatalf("supplier id = %v, want nil", *match.SupplierID)
	}
	if match.InferredName == nil || *match.InferredName != "さくら物産" {
		t.Fatalf("inferred name = %v, want hint さくら物産", match.InferredName)
	}
}

func TestInferNothing(t *testing.T) {
	match := Infer([]string{"misc"}, "0305.csv", roster())
	if match.SupplierID != nil || match.InferredCode != nil || match.InferredName != nil {
		t.Fatalf("match = %+v, want all nil", match)
	}
}

func TestInferStableTieBreak(t *testing.T) {
	twins := []internal.Supplier{
		{ID: 10, Name: "共通 食品"},
		{ID: 11, Name: "共通食品"},
	}
	match := Infer([]string{"共通食品"}, "file.csv", twins)
	if match.SupplierID == nil || *match.SupplierID != 10 {
		t.Fatalf("match = %+v, want first-declared supplier 10", match)
	}
}
