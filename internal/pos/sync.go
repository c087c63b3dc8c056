package pos

import (
	"context"

	"nouhin/internal/storage"
)

// SyncService mirrors POS reference data into the local database.
type SyncService struct {
	db     *storage.DB
	client *Client
}

func NewSyncService(db *storage.DB, client *Client) *SyncService {
	return &SyncService{db: db, client: client}
}

func (s *SyncService) SyncDepartments(ctx context.Context) (int, error) {
	departments, err := s.client.ListDepartments(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertPosDepartments(departments); err != nil {
		return 0, err
	}
	return len(departments), nil
}

// SyncNewProductCodes looks up codes that are not yet mirrored locally and
// pulls their POS records. Returns how many were fetched.
func (s *SyncService) SyncNewProductCodes(ctx context.Context, codes []string) (int, error) {
	var unique []string
	seen := map[string]bool{}
	for _, code := range codes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		unique = append(unique, code)
	}
	if len(unique) == 0 {
		return 0, nil
	}

	known, err := s.db.KnownPosProductCodes(unique)
	if err != nil {
		return 0, err
	}

	var missing []string
	for _, code := range unique {
		if !known[code] {
			missing = append(missing, code)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	products, err := s.client.ListProducts(ctx, missing)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertPosProducts(products); err != nil {
		return 0, err
	}
	return len(products), nil
}
