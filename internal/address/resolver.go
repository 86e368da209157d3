package address

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

// Postal lookup is only offered for countries the lookup provider covers.
var zipLookupCountries = map[string]bool{
	"US": true,
	"CA": true,
}

const minZipLookupLength = 5

var ErrLookupInFlight = errors.New("postal lookup already in flight")

// ZipResult is the raw lookup outcome from the provider.
type ZipResult struct {
	City  string
	State string
}

// ZipResolution is what a successful lookup applied to the address. State is
// empty when the looked-up state was not valid for the selected country.
type ZipResolution struct {
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Message string `json:"message"`
}

// RegionSource provides country/state reference data and postal lookups.
type RegionSource interface {
	Countries(ctx context.Context) ([]domain.RegionReference, error)
	LookupZip(ctx context.Context, zip, countryCode string) (*ZipResult, error)
}

// Resolver owns shipping-address reference data for a checkout session. The
// country table is loaded once and treated as read-only afterwards.
type Resolver struct {
	source RegionSource
	log    *logrus.Entry
	sfg    singleflight.Group

	mu      sync.Mutex
	regions []domain.RegionReference
	looking bool
}

func NewResolver(source RegionSource, log *logrus.Entry) *Resolver {
	return &Resolver{
		source: source,
		log:    log,
	}
}

// LoadRegions fetches the country table on first use and caches it for the
// session. Concurrent first loads collapse into a single provider call.
func (r *Resolver) LoadRegions(ctx context.Context) ([]domain.RegionReference, error) {
	r.mu.Lock()
	cached := r.regions
	r.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := r.sfg.Do("regions", func() (interface{}, error) {
		regions, err := r.source.Countries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load countries: %w", err)
		}
		r.mu.Lock()
		r.regions = regions
		r.mu.Unlock()
		return regions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.RegionReference), nil
}

// StatesFor returns the state list for a country, nil when the country has
// none or is unknown.
func (r *Resolver) StatesFor(countryCode string) []domain.StateOption {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, region := range r.regions {
		if region.Code == countryCode {
			return region.States
		}
	}
	return nil
}

// UpdateAvailableStates records a country change on the address. The state
// field is cleared iff the previously selected state is not valid for the new
// country, so a region selection can never point at a foreign state.
func (r *Resolver) UpdateAvailableStates(info *domain.CustomerInfo, countryCode string) []domain.StateOption {
	info.Country = countryCode
	states := r.StatesFor(countryCode)
	if info.State != "" && !containsState(states, info.State) {
		info.State = ""
	}
	return states
}

// HandleZipCodeChange always writes the raw zip into the address. When the
// zip is long enough and the country supports postal lookup, it resolves
// city/state; a failed or empty lookup leaves the fields for manual entry.
func (r *Resolver) HandleZipCodeChange(ctx context.Context, info *domain.CustomerInfo, zip, countryCode string) (*ZipResolution, error) {
	info.Zip = zip

	if len(zip) < minZipLookupLength || !zipLookupCountries[countryCode] {
		return nil, nil
	}

	r.mu.Lock()
	if r.looking {
		r.mu.Unlock()
		return nil, ErrLookupInFlight
	}
	r.looking = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.looking = false
		r.mu.Unlock()
	}()

	result, err := r.source.LookupZip(ctx, zip, countryCode)
	if err != nil || result == nil {
		// Silent degrade: the user fills city/state in by hand.
		if err != nil {
			r.log.WithError(err).Debug("postal lookup failed")
		}
		return nil, nil
	}

	info.City = result.City
	resolution := &ZipResolution{City: result.City}
	if containsState(r.StatesFor(countryCode), result.State) {
		info.State = result.State
		resolution.State = result.State
		resolution.Message = fmt.Sprintf("Location found: %s, %s", result.City, result.State)
	} else {
		resolution.Message = fmt.Sprintf("Location found: %s", result.City)
	}
	return resolution, nil
}

func containsState(states []domain.StateOption, code string) bool {
	for _, state := range states {
		if state.Code == code {
			return true
		}
	}
	return false
}
