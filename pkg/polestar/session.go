package polestar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/polestar-community/polestar-go/internal/log"
	"github.com/polestar-community/polestar-go/pkg/cache"
)

// DefaultCacheTTL is how long fetched query results stay fresh.
const DefaultCacheTTL = 30 * time.Second

// ErrNoVehicles indicates the account has no vehicles associated with it. Initialization cannot
// recover from this; the session must be abandoned.
var ErrNoVehicles = errors.New("no vehicles found in account")

// State tracks session initialization progress.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

// VehicleIdentity describes the vehicle the session tracks. Derived once during initialization
// and immutable afterwards.
type VehicleIdentity struct {
	VIN         string
	ShortID     string // first 8 characters of the VIN
	DisplayName string // "Polestar " plus the last 4 characters of the VIN
}

// Config collects the session's optional settings; the zero value selects production defaults.
type Config struct {
	// Endpoint overrides DefaultEndpoint when set.
	Endpoint string
	// CacheTTL overrides DefaultCacheTTL when set.
	CacheTTL time.Duration
	// HTTPClient carries the transport policy (timeouts, proxies) for API requests.
	HTTPClient *http.Client
}

// Session tracks the single vehicle on a Polestar account and caches its odometer and battery
// data.
//
// A Session starts out uninitialized: call [Session.Initialize] to discover the vehicle, then
// the Refresh methods to fetch data and the read accessors to project cached fields out of it.
// Reads never fail; a missing, stale, or empty field reads as nil.
type Session struct {
	client *Client
	auth   Authenticator
	store  *cache.Store

	identity VehicleIdentity
	state    atomic.Int32
	updating atomic.Bool
}

// NewSession returns an uninitialized Session for the account auth belongs to.
func NewSession(auth Authenticator, config Config) *Session {
	ttl := config.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	client := NewClient(auth, config.HTTPClient)
	if config.Endpoint != "" {
		client.Endpoint = config.Endpoint
	}
	return &Session{
		client: client,
		auth:   auth,
		store:  cache.NewStore(ttl),
	}
}

// Initialize authenticates, fetches the account's vehicle list, selects the first vehicle, and
// seeds the cache with it. Returns ErrNoVehicles when the account has none. A failed
// initialization leaves the session non-ready; retrying on a fresh session is the caller's call.
func (s *Session) Initialize(ctx context.Context) error {
	s.state.Store(int32(StateInitializing))
	if _, err := s.auth.Headers(ctx); err != nil {
		s.state.Store(int32(StateUninitialized))
		return fmt.Errorf("authentication failed: %w", err)
	}

	result, err := s.client.Execute(ctx, vehicleListParams())
	if err != nil {
		s.state.Store(int32(StateUninitialized))
		return fmt.Errorf("could not fetch vehicle list: %w", err)
	}
	vehicles := result.Get("data." + cache.QueryVehicleList.String())
	if !vehicles.IsArray() || len(vehicles.Array()) == 0 {
		s.state.Store(int32(StateUninitialized))
		log.Error("No vehicles found in account")
		return ErrNoVehicles
	}

	// Only the first vehicle in the account is tracked.
	selected := vehicles.Array()[0]
	vin := selected.Get("vin").Str
	s.identity = VehicleIdentity{
		VIN:         vin,
		ShortID:     shortID(vin),
		DisplayName: displayName(vin),
	}
	s.store.Put(cache.QueryVehicleList, json.RawMessage(selected.Raw))
	s.state.Store(int32(StateReady))
	log.Info("Initialized session for %s (%s)", s.identity.DisplayName, s.identity.ShortID)
	return nil
}

// State returns the session's initialization state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Ready reports whether Initialize has completed successfully.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Identity returns the tracked vehicle's identity. Zero until the session is ready.
func (s *Session) Identity() VehicleIdentity {
	return s.identity
}

// VIN returns the tracked vehicle's identification number. Empty until the session is ready.
func (s *Session) VIN() string {
	return s.identity.VIN
}

// RefreshOdometer fetches current odometer data and replaces the cached entry.
func (s *Session) RefreshOdometer(ctx context.Context) error {
	return s.refresh(ctx, cache.QueryOdometer, odometerParams(s.identity.VIN))
}

// RefreshBattery fetches current battery and charging data and replaces the cached entry.
func (s *Session) RefreshBattery(ctx context.Context) error {
	return s.refresh(ctx, cache.QueryBattery, batteryParams(s.identity.VIN))
}

// RefreshAll fetches odometer and battery data. At most one refresh runs at a time: a call that
// finds another refresh in flight is dropped (returns nil without fetching), not queued. Callers
// that need the result of an overlapping refresh poll the read accessors instead.
func (s *Session) RefreshAll(ctx context.Context) error {
	if !s.updating.CompareAndSwap(false, true) {
		log.Debug("Refresh already in flight, dropping request")
		return nil
	}
	defer s.updating.Store(false)

	if err := s.RefreshOdometer(ctx); err != nil {
		return err
	}
	return s.RefreshBattery(ctx)
}

func (s *Session) refresh(ctx context.Context, query cache.Query, params QueryParams) error {
	result, err := s.client.Execute(ctx, params)
	if err != nil {
		return err
	}
	payload := result.Get("data." + query.String())
	if !payload.Exists() || payload.Type == gjson.Null {
		// Record that the fetch happened and found nothing; distinct from never fetched.
		s.store.Put(query, nil)
		return nil
	}
	s.store.Put(query, json.RawMessage(payload.Raw))
	return nil
}

// CachedField returns the cached value at path for query, or nil when the entry is missing or
// stale.
func (s *Session) CachedField(query cache.Query, path string) interface{} {
	return s.store.GetFresh(query, path)
}

// CachedFieldSkipTTL returns the cached value at path for query regardless of the entry's age.
// It bypasses only the freshness check, not the cache itself.
func (s *Session) CachedFieldSkipTTL(query cache.Query, path string) interface{} {
	return s.store.GetAny(query, path)
}

// LatestField returns the last known value at path for query, independent of the TTL.
func (s *Session) LatestField(query cache.Query, path string) interface{} {
	return s.store.Latest(query, path)
}

func shortID(vin string) string {
	if len(vin) < 8 {
		return vin
	}
	return vin[:8]
}

func displayName(vin string) string {
	if len(vin) < 4 {
		return "Polestar " + vin
	}
	return "Polestar " + vin[len(vin)-4:]
}
