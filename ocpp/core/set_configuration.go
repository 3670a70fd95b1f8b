package core

const SetConfigurationFeatureName = "SetConfiguration"

// SetConfigurationRequest maps configuration key names to raw values; several keys may be
// set in one call, unlike ChangeConfiguration
type SetConfigurationRequest map[string]interface{}

// KeyStatus is the per-key outcome of a SetConfiguration call
type KeyStatus struct {
	Key    string              `json:"key"`
	Status ConfigurationStatus `json:"status"`
}

type SetConfigurationResponse struct {
	ConfigurationKey []KeyStatus `json:"configurationKey"`
}

func (r SetConfigurationRequest) GetFeatureName() string {
	return SetConfigurationFeatureName
}

func (r *SetConfigurationResponse) GetFeatureName() string {
	return SetConfigurationFeatureName
}
