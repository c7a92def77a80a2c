// File holds the fixed GraphQL documents the client issues. The documents match what the
// official app requests; changing them changes what ends up in the cache.

package polestar

const (
	queryVehicleList = "query getCars {  getConsumerCarsV2 {    vin    internalVehicleIdentifier    modelYear    content {      model {        code        name        __typename      }      images {        studio {          url          angles          __typename        }        __typename      }      __typename    }    hasPerformancePackage    registrationNo    deliveryDate    currentPlannedDeliveryDate    __typename  }}"

	queryOdometer = "query GetOdometerData($vin: String!) { getOdometerData(vin: $vin) { averageSpeedKmPerHour eventUpdatedTimestamp { iso unix __typename } odometerMeters tripMeterAutomaticKm tripMeterManualKm __typename }}"

	queryBattery = "query GetBatteryData($vin: String!) {  getBatteryData(vin: $vin) {    averageEnergyConsumptionKwhPer100Km    batteryChargeLevelPercentage    chargerConnectionStatus    chargingCurrentAmps    chargingPowerWatts    chargingStatus    estimatedChargingTimeMinutesToTargetDistance    estimatedChargingTimeToFullMinutes    estimatedDistanceToEmptyKm    estimatedDistanceToEmptyMiles    eventUpdatedTimestamp {      iso      unix      __typename    }    __typename  }}"
)

func vehicleListParams() QueryParams {
	return QueryParams{
		Query:         queryVehicleList,
		OperationName: "getCars",
	}
}

func odometerParams(vin string) QueryParams {
	return QueryParams{
		Query:         queryOdometer,
		OperationName: "GetOdometerData",
		Variables:     map[string]interface{}{"vin": vin},
	}
}

func batteryParams(vin string) QueryParams {
	return QueryParams{
		Query:         queryBattery,
		OperationName: "GetBatteryData",
		Variables:     map[string]interface{}{"vin": vin},
	}
}
