package terminology

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/internal/platform/telemetry"
	"github.com/ehr/clinic/pkg/textfold"
)

const (
	// MinQueryLength is the number of characters a search needs before the
	// catalog is queried.
	MinQueryLength     = 3
	DefaultSearchLimit = 8
	MaxSearchLimit     = 50
	DefaultCacheTTL    = 10 * time.Minute
)

const constantsKey = "constants"

// Service provides diagnosis catalog operations with cached reads.
type Service struct {
	codes     CodeRepository
	constants ConstantRepository
	cache     *cache.Cache
	metrics   *telemetry.Metrics
}

// NewService creates a catalog service. A non-positive ttl uses
// DefaultCacheTTL. metrics may be nil.
func NewService(codes CodeRepository, constants ConstantRepository, ttl time.Duration, metrics *telemetry.Metrics) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		codes:     codes,
		constants: constants,
		cache:     cache.New(ttl, 2*ttl),
		metrics:   metrics,
	}
}

// scoped prefixes key with the clinic in ctx. Each clinic has its own
// catalog rows, constant IDs included.
func scoped(ctx context.Context, key string) string {
	return db.TenantFromContext(ctx) + "/" + key
}

func (s *Service) cached(key string) (interface{}, bool) {
	v, ok := s.cache.Get(key)
	s.metrics.CacheLookup(ok)
	return v, ok
}

// IsPickedLabel reports whether q is a value already picked from the
// results, in "CODE - Description" form.
func IsPickedLabel(q string) bool {
	return strings.Contains(q, LabelSeparator)
}

// Search returns up to limit active codes whose code or description contains
// q. Queries shorter than MinQueryLength and picked labels return no
// results without touching the catalog.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]*DiagnosisCode, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinQueryLength || IsPickedLabel(q) {
		return []*DiagnosisCode{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	folded := textfold.Fold(q)
	key := scoped(ctx, "search:"+strconv.Itoa(limit)+":"+folded)
	if v, ok := s.cached(key); ok {
		return v.([]*DiagnosisCode), nil
	}

	results, err := s.codes.Search(ctx, likePattern(q), likePattern(folded), limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []*DiagnosisCode{}
	}
	s.cache.SetDefault(key, results)
	return results, nil
}

// Lookup returns one code. Unknown codes return ErrCodeNotFound and are not
// cached.
func (s *Service) Lookup(ctx context.Context, code string) (*DiagnosisCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	key := scoped(ctx, "code:"+code)
	if v, ok := s.cached(key); ok {
		return v.(*DiagnosisCode), nil
	}
	d, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, d)
	return d, nil
}

// Constants returns the clinical constants catalog keyed by code.
func (s *Service) Constants(ctx context.Context) (map[string]*ClinicalConstant, error) {
	key := scoped(ctx, constantsKey)
	if v, ok := s.cached(key); ok {
		return v.(map[string]*ClinicalConstant), nil
	}
	list, err := s.constants.List(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*ClinicalConstant, len(list))
	for _, k := range list {
		byCode[k.Code] = k
	}
	s.cache.SetDefault(key, byCode)
	return byCode, nil
}

// Constant returns one clinical constant by code.
func (s *Service) Constant(ctx context.Context, code string) (*ClinicalConstant, error) {
	all, err := s.Constants(ctx)
	if err != nil {
		return nil, err
	}
	k, ok := all[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrConstantNotFound
	}
	return k, nil
}

// ImportResult reports how many catalog rows an import wrote.
type ImportResult struct {
	DiagnosisCodes    int `json:"diagnosis_codes"`
	ClinicalConstants int `json:"clinical_constants"`
}

// Import upserts a validated catalog and clears the cache.
func (s *Service) Import(ctx context.Context, cat *Catalog) (*ImportResult, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	codes, err := s.codes.Upsert(ctx, cat.DiagnosisCodes)
	if err != nil {
		return nil, err
	}
	constants, err := s.constants.Upsert(ctx, cat.ClinicalConstants)
	if err != nil {
		return nil, err
	}
	s.cache.Flush()
	return &ImportResult{DiagnosisCodes: codes, ClinicalConstants: constants}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps v for a contains match, escaping LIKE wildcards.
func likePattern(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}
