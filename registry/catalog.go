package registry

type KeyType string

const (
	TypeBoolean KeyType = "boolean"
	TypeInteger KeyType = "integer"
	TypeString  KeyType = "string"
)

const (
	KeyHeartbeatInterval        = "HeartbeatInterval"
	KeyMeterValueSampleInterval = "MeterValueSampleInterval"
	KeyNumberOfConnectors       = "NumberOfConnectors"
)

type Definition struct {
	Name     string
	Type     KeyType
	Readonly bool
	Default  string
	Max      int
}

// catalog is closed: keys not listed here are never stored
var catalog = []Definition{
	{Name: "AllowOfflineTxForUnknownId", Type: TypeBoolean},
	{Name: "AuthorizationCacheEnabled", Type: TypeBoolean},
	{Name: "AuthorizationCacheLifetime", Type: TypeInteger},
	{Name: "AuthorizeRemoteTxRequests", Type: TypeBoolean, Default: "false"},
	{Name: "ClockAlignedDataInterval", Type: TypeInteger, Default: "0"},
	{Name: "ConnectionTimeOut", Type: TypeInteger},
	{Name: "ConnectorPhaseRotation", Type: TypeString},
	{Name: "ConnectorPhaseRotationMaxLength", Type: TypeInteger, Readonly: true},
	{Name: "GetConfigurationMaxKeys", Type: TypeInteger, Readonly: true, Default: "50"},
	{Name: KeyHeartbeatInterval, Type: TypeInteger},
	{Name: "LocalAuthorizeOffline", Type: TypeBoolean},
	{Name: "LocalPreAuthorize", Type: TypeBoolean},
	{Name: "MeterValueAlignedData", Type: TypeString},
	{Name: "MeterValueAlignedDataMaxLength", Type: TypeInteger, Readonly: true},
	{Name: "MeterValueSampledData", Type: TypeString, Default: "Energy.Active.Import.Register,Power.Active.Import,SoC"},
	{Name: "MeterValueSampledDataMaxLength", Type: TypeInteger, Readonly: true},
	{Name: KeyMeterValueSampleInterval, Type: TypeInteger},
	{Name: "MinimumStatusDuration", Type: TypeInteger},
	{Name: KeyNumberOfConnectors, Type: TypeInteger, Readonly: true, Default: "1", Max: 100},
	{Name: "ResetRetries", Type: TypeInteger},
	{Name: "StopTransactionMaxMeterValues", Type: TypeInteger},
	{Name: "StopTransactionOnEVSideDisconnect", Type: TypeBoolean},
	{Name: "StopTransactionOnInvalidId", Type: TypeBoolean},
	{Name: "StopTxnAlignedData", Type: TypeString},
	{Name: "StopTxnAlignedDataMaxLength", Type: TypeInteger, Readonly: true},
	{Name: "StopTxnSampledData", Type: TypeString},
	{Name: "StopTxnSampledDataMaxLength", Type: TypeInteger, Readonly: true},
	{Name: "TransactionMessageAttempts", Type: TypeInteger},
	{Name: "TransactionMessageRetryInterval", Type: TypeInteger},
	{Name: "UnlockConnectorOnEVSideDisconnect", Type: TypeBoolean},
	{Name: "WebSocketPingInterval", Type: TypeInteger},
	{Name: "LocalAuthListEnabled", Type: TypeBoolean},
	{Name: "LocalAuthListMaxLength", Type: TypeInteger, Readonly: true},
	{Name: "SendLocalListMaxLength", Type: TypeInteger, Readonly: true},
	{Name: "ReserveConnectorZeroSupported", Type: TypeBoolean, Readonly: true},
	{Name: "ChargeProfileMaxStackLevel", Type: TypeInteger, Readonly: true},
	{Name: "ChargingScheduleAllowedChargingRateUnit", Type: TypeString, Readonly: true},
	{Name: "ChargingScheduleMaxPeriods", Type: TypeInteger, Readonly: true},
	{Name: "ConnectorSwitch3to1PhaseSupported", Type: TypeBoolean, Readonly: true},
	{Name: "MaxChargingProfilesInstalled", Type: TypeInteger, Readonly: true},
}

var definitions = func() map[string]Definition {
	m := make(map[string]Definition, len(catalog))
	for _, d := range catalog {
		m[d.Name] = d
	}
	return m
}()

func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// Keys lists the catalog in declaration order
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for _, d := range catalog {
		keys = append(keys, d.Name)
	}
	return keys
}
