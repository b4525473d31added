package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
)

const regionsCollection = "regions"

type regionDocument struct {
	RegionID    string `firestore:"regionId"`
	Name        string `firestore:"name"`
	NameLower   string `firestore:"nameLower"`
	CountryCode string `firestore:"countryCode"`
}

// RegionRepository maps region names to region ids per country.
type RegionRepository struct {
	regions *pfirestore.Collection[regionDocument]
}

// NewRegionRepository constructs a Firestore-backed region directory.
func NewRegionRepository(provider *pfirestore.Provider) (*RegionRepository, error) {
	if provider == nil {
		return nil, errors.New("region repository requires firestore provider")
	}
	return &RegionRepository{
		regions: pfirestore.NewCollection[regionDocument](provider, regionsCollection, nil),
	}, nil
}

// Lookup matches name case-insensitively within the country.
func (r *RegionRepository) Lookup(ctx context.Context, name, countryCode string) (string, bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	if name == "" || country == "" {
		return "", false, nil
	}
	docs, err := r.regions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("countryCode", "==", country).Where("nameLower", "==", name).Limit(1)
	})
	if err != nil {
		return "", false, err
	}
	if len(docs) == 0 {
		return "", false, nil
	}
	return docs[0].RegionID, true, nil
}
