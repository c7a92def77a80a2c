package polestar_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/polestar-community/polestar-go/mocks"
	"github.com/polestar-community/polestar-go/pkg/cache"
	"github.com/polestar-community/polestar-go/pkg/polestar"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

const testVIN = "LPSVSEDEEML123456"

var _ = Describe("Session", func() {
	var (
		ctrl    *gomock.Controller
		auth    *mocks.MockAuthenticator
		session *polestar.Session
		ctx     context.Context
	)

	vehicleListBody := fmt.Sprintf(`{"data": {"getConsumerCarsV2": [{"vin": %q, "modelYear": "2024", "content": {"model": {"code": "PS2", "name": "Polestar 2", "__typename": "pdsVehicleModel"}}}]}}`, testVIN)
	odometerBody := `{"data": {"getOdometerData": {"odometerMeters": 42000, "tripMeterManualKm": 12.5}}}`
	batteryBody := `{"data": {"getBatteryData": {"batteryChargeLevelPercentage": 80, "chargingStatus": "CHARGING_STATUS_IDLE"}}}`

	// respond dispatches on the operationName query parameter so one responder covers all of
	// the session's fixed queries.
	respond := func(responses map[string]string) {
		httpmock.RegisterResponder(http.MethodGet, `=~^https://api\.example\.com/my-star/`,
			func(r *http.Request) (*http.Response, error) {
				operation := r.URL.Query().Get("operationName")
				body, ok := responses[operation]
				if !ok {
					return httpmock.NewStringResponse(http.StatusBadRequest, `{"errors": [{"message": "unknown operation"}]}`), nil
				}
				return httpmock.NewStringResponse(http.StatusOK, body), nil
			})
	}

	initialize := func() {
		respond(map[string]string{"getCars": vehicleListBody})
		Expect(session.Initialize(ctx)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		ctrl = gomock.NewController(GinkgoT())
		auth = mocks.NewMockAuthenticator(ctrl)
		auth.EXPECT().Headers(gomock.Any()).Return(map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer token",
		}, nil).AnyTimes()
		auth.EXPECT().Refresh(gomock.Any()).Return(nil).AnyTimes()

		httpClient := &http.Client{}
		httpmock.ActivateNonDefault(httpClient)
		DeferCleanup(httpmock.DeactivateAndReset)

		session = polestar.NewSession(auth, polestar.Config{
			Endpoint:   testEndpoint,
			HTTPClient: httpClient,
		})
	})

	Describe("Initialize", func() {
		It("selects the first vehicle and derives its identity", func() {
			initialize()

			Expect(session.Ready()).To(BeTrue())
			Expect(session.State()).To(Equal(polestar.StateReady))
			Expect(session.VIN()).To(Equal(testVIN))
			Expect(session.Identity().ShortID).To(Equal("LPSVSEDE"))
			Expect(session.Identity().DisplayName).To(Equal("Polestar 3456"))
		})

		It("seeds the vehicle list cache with the selected vehicle", func() {
			initialize()

			Expect(session.CachedField(cache.QueryVehicleList, "vin")).To(Equal(testVIN))
			Expect(session.CachedField(cache.QueryVehicleList, "content/model/name")).To(Equal("Polestar 2"))
		})

		It("fails with ErrNoVehicles on an empty account", func() {
			respond(map[string]string{"getCars": `{"data": {"getConsumerCarsV2": []}}`})

			Expect(session.Initialize(ctx)).To(MatchError(polestar.ErrNoVehicles))
			Expect(session.Ready()).To(BeFalse())
		})

		It("fails with ErrNoVehicles when the vehicle list is null", func() {
			respond(map[string]string{"getCars": `{"data": {"getConsumerCarsV2": null}}`})

			Expect(session.Initialize(ctx)).To(MatchError(polestar.ErrNoVehicles))
			Expect(session.Ready()).To(BeFalse())
		})
	})

	Describe("refreshing", func() {
		BeforeEach(func() {
			initialize()
			respond(map[string]string{
				"GetOdometerData": odometerBody,
				"GetBatteryData":  batteryBody,
			})
		})

		It("caches odometer data", func() {
			Expect(session.RefreshOdometer(ctx)).To(Succeed())
			Expect(session.CachedField(cache.QueryOdometer, "odometerMeters")).To(Equal(float64(42000)))
		})

		It("caches battery data", func() {
			Expect(session.RefreshBattery(ctx)).To(Succeed())
			Expect(session.CachedField(cache.QueryBattery, "batteryChargeLevelPercentage")).To(Equal(float64(80)))
			Expect(session.CachedField(cache.QueryBattery, "chargingStatus")).To(Equal("CHARGING_STATUS_IDLE"))
		})

		It("refreshes both domains with RefreshAll", func() {
			Expect(session.RefreshAll(ctx)).To(Succeed())
			Expect(session.CachedField(cache.QueryOdometer, "odometerMeters")).To(Equal(float64(42000)))
			Expect(session.CachedField(cache.QueryBattery, "batteryChargeLevelPercentage")).To(Equal(float64(80)))
		})

		It("records the null marker when a domain returns nothing", func() {
			respond(map[string]string{
				"GetOdometerData": `{"data": {"getOdometerData": null}}`,
				"GetBatteryData":  batteryBody,
			})
			Expect(session.RefreshOdometer(ctx)).To(Succeed())
			Expect(session.CachedField(cache.QueryOdometer, "odometerMeters")).To(BeNil())
			Expect(session.LatestField(cache.QueryOdometer, "odometerMeters")).To(BeNil())
		})

		It("drops an overlapping RefreshAll", func() {
			var once sync.Once
			started := make(chan struct{})
			release := make(chan struct{})
			httpmock.RegisterResponder(http.MethodGet, `=~^https://api\.example\.com/my-star/`,
				func(r *http.Request) (*http.Response, error) {
					if r.URL.Query().Get("operationName") == "GetOdometerData" {
						once.Do(func() { close(started) })
						<-release
						return httpmock.NewStringResponse(http.StatusOK, odometerBody), nil
					}
					return httpmock.NewStringResponse(http.StatusOK, batteryBody), nil
				})
			httpmock.ZeroCallCounters()

			first := make(chan error, 1)
			go func() {
				first <- session.RefreshAll(ctx)
			}()
			<-started

			// The first refresh is stalled inside its odometer fetch; this call is a no-op.
			Expect(session.RefreshAll(ctx)).To(Succeed())
			Expect(httpmock.GetTotalCallCount()).To(Equal(1))

			close(release)
			Eventually(first).Should(Receive(BeNil()))
			Expect(httpmock.GetTotalCallCount()).To(Equal(2))
		})
	})

	Describe("cached reads", func() {
		BeforeEach(func() {
			// A tiny TTL so staleness is observable without stubbing the clock.
			httpClient := &http.Client{}
			httpmock.ActivateNonDefault(httpClient)
			session = polestar.NewSession(auth, polestar.Config{
				Endpoint:   testEndpoint,
				HTTPClient: httpClient,
				CacheTTL:   50 * time.Millisecond,
			})
			initialize()
			respond(map[string]string{"GetBatteryData": batteryBody})
			Expect(session.RefreshBattery(ctx)).To(Succeed())
		})

		It("reads nil for never-fetched queries", func() {
			Expect(session.CachedField(cache.QueryOdometer, "odometerMeters")).To(BeNil())
			Expect(session.CachedFieldSkipTTL(cache.QueryOdometer, "odometerMeters")).To(BeNil())
			Expect(session.LatestField(cache.QueryOdometer, "odometerMeters")).To(BeNil())
		})

		It("degrades fresh reads to nil once the entry goes stale", func() {
			Expect(session.CachedField(cache.QueryBattery, "batteryChargeLevelPercentage")).To(Equal(float64(80)))

			time.Sleep(100 * time.Millisecond)

			Expect(session.CachedField(cache.QueryBattery, "batteryChargeLevelPercentage")).To(BeNil())
			Expect(session.CachedFieldSkipTTL(cache.QueryBattery, "batteryChargeLevelPercentage")).To(Equal(float64(80)))
			Expect(session.LatestField(cache.QueryBattery, "batteryChargeLevelPercentage")).To(Equal(float64(80)))
		})
	})
})
