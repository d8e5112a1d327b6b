package terminology

import "context"

// CodeRepository provides access to the diagnosis catalog.
type CodeRepository interface {
	// Search matches code or description against pattern, or the folded
	// search text against foldedPattern. Both are LIKE patterns.
	Search(ctx context.Context, pattern, foldedPattern string, limit int) ([]*DiagnosisCode, error)
	GetByCode(ctx context.Context, code string) (*DiagnosisCode, error)
	Upsert(ctx context.Context, codes []DiagnosisCode) (int, error)
}

// ConstantRepository provides access to the clinical constants catalog.
type ConstantRepository interface {
	List(ctx context.Context) ([]*ClinicalConstant, error)
	Upsert(ctx context.Context, constants []ClinicalConstant) (int, error)
}
