package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"evsim/ocpp/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) FeatureEvent(feature, id, text string) {}
func (testLogger) Debug(text string)                     {}
func (testLogger) Warn(text string)                      {}
func (testLogger) Error(text string, err error)          {}
func (testLogger) RawDataEvent(direction, data string)   {}

type changeRecorder struct {
	changes [][2]string
}

func (c *changeRecorder) OnConfigurationChanged(key, value string) {
	c.changes = append(c.changes, [2]string{key, value})
}

type failingStore struct{ *MemoryStore }

func (f *failingStore) Set(key, value string) error { return errors.New("disk full") }

func statusOf(t *testing.T, result []core.KeyStatus, key string) core.ConfigurationStatus {
	t.Helper()
	for _, ks := range result {
		if ks.Key == key {
			return ks.Status
		}
	}
	t.Fatalf("no status for %s", key)
	return ""
}

func TestRegistry_UnknownKeyNotSupportedAndNotStored(t *testing.T) {
	store := NewMemoryStore()
	r := NewRegistry(store, testLogger{})

	for i := 0; i < 3; i++ {
		result := r.SetConfiguration(map[string]interface{}{"FancyKey": "1", "HeartbeatInterval": "30"})
		assert.Equal(t, core.ConfigurationStatusNotSupported, statusOf(t, result, "FancyKey"))
		assert.Equal(t, core.ConfigurationStatusAccepted, statusOf(t, result, "HeartbeatInterval"))
	}
	_, found, _ := store.Get("FancyKey")
	assert.False(t, found)
	result := r.SetConfiguration(map[string]interface{}{"FancyKey": nil})
	assert.Equal(t, core.ConfigurationStatusNotSupported, statusOf(t, result, "FancyKey"))
}

func TestRegistry_Coercion(t *testing.T) {
	tests := []struct {
		key    string
		raw    interface{}
		status core.ConfigurationStatus
		stored string
	}{
		{"AuthorizationCacheEnabled", "true", core.ConfigurationStatusAccepted, "true"},
		{"AuthorizationCacheEnabled", "TRUE", core.ConfigurationStatusAccepted, "true"},
		{"AuthorizationCacheEnabled", "False", core.ConfigurationStatusAccepted, "false"},
		{"AuthorizationCacheEnabled", true, core.ConfigurationStatusAccepted, "true"},
		{"AuthorizationCacheEnabled", "yes", core.ConfigurationStatusRejected, ""},
		{"HeartbeatInterval", "45", core.ConfigurationStatusAccepted, "45"},
		{"HeartbeatInterval", " 45 ", core.ConfigurationStatusAccepted, "45"},
		{"HeartbeatInterval", float64(45), core.ConfigurationStatusAccepted, "45"},
		{"HeartbeatInterval", "abc", core.ConfigurationStatusRejected, ""},
		{"HeartbeatInterval", "45s", core.ConfigurationStatusRejected, ""},
		{"HeartbeatInterval", 4.5, core.ConfigurationStatusRejected, ""},
		{"HeartbeatInterval", "-1", core.ConfigurationStatusRejected, ""},
		{"HeartbeatInterval", map[string]interface{}{}, core.ConfigurationStatusRejected, ""},
		{"NumberOfConnectors", "101", core.ConfigurationStatusRejected, ""},
		{"ConnectorPhaseRotation", "0.RST,1.RST", core.ConfigurationStatusAccepted, "0.RST,1.RST"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			store := NewMemoryStore()
			r := NewRegistry(store, testLogger{})
			result := r.SetConfiguration(map[string]interface{}{tt.key: tt.raw})
			require.Len(t, result, 1)
			assert.Equal(t, tt.status, result[0].Status)
			value, found, _ := store.Get(tt.key)
			if tt.stored == "" {
				assert.False(t, found)
				return
			}
			assert.Equal(t, tt.stored, value)
		})
	}
}

func TestRegistry_TypedReadback(t *testing.T) {
	r := NewRegistry(nil, testLogger{})
	r.SetConfiguration(map[string]interface{}{"HeartbeatInterval": "45", "LocalPreAuthorize": "TRUE"})

	interval, ok := r.Int(KeyHeartbeatInterval)
	assert.True(t, ok)
	assert.Equal(t, 45, interval)
	enabled, ok := r.Bool("LocalPreAuthorize")
	assert.True(t, ok)
	assert.True(t, enabled)

	_, ok = r.Int(KeyMeterValueSampleInterval)
	assert.False(t, ok)
	connectors, ok := r.Int(KeyNumberOfConnectors)
	assert.True(t, ok)
	assert.Equal(t, 1, connectors)
}

func TestRegistry_ResultsInKeyOrderAndListenersNotified(t *testing.T) {
	r := NewRegistry(nil, testLogger{})
	recorder := &changeRecorder{}
	r.AddListener(recorder)

	result := r.SetConfiguration(map[string]interface{}{
		"NumberOfConnectors": "2",
		"HeartbeatInterval":  "abc",
		"Bogus":              "1",
		"LocalPreAuthorize":  "true",
	})
	keys := make([]string, 0, len(result))
	for _, ks := range result {
		keys = append(keys, ks.Key)
	}
	assert.Equal(t, []string{"Bogus", "HeartbeatInterval", "LocalPreAuthorize", "NumberOfConnectors"}, keys)
	assert.Equal(t, [][2]string{{"LocalPreAuthorize", "true"}, {"NumberOfConnectors", "2"}}, recorder.changes)
}

func TestRegistry_ChangeRespectsReadonly(t *testing.T) {
	r := NewRegistry(nil, testLogger{})
	assert.Equal(t, core.ConfigurationStatusRejected, r.Change(KeyNumberOfConnectors, "2"))
	assert.Equal(t, core.ConfigurationStatusAccepted, r.Change(KeyHeartbeatInterval, "10"))
	assert.Equal(t, core.ConfigurationStatusNotSupported, r.Change("Nope", "1"))
}

func TestRegistry_StoreFailureRejects(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	recorder := &changeRecorder{}
	r := NewRegistry(store, testLogger{})
	r.AddListener(recorder)
	result := r.SetConfiguration(map[string]interface{}{"HeartbeatInterval": "30"})
	assert.Equal(t, core.ConfigurationStatusRejected, result[0].Status)
	assert.Empty(t, recorder.changes)
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(nil, testLogger{})
	r.Change(KeyHeartbeatInterval, "15")

	known, unknown := r.Get([]string{KeyHeartbeatInterval, KeyMeterValueSampleInterval, "Nope"})
	require.Len(t, known, 2)
	require.NotNil(t, known[0].Value)
	assert.Equal(t, "15", *known[0].Value)
	assert.Nil(t, known[1].Value)
	assert.Equal(t, []string{"Nope"}, unknown)

	all, unknown := r.Get(nil)
	assert.Len(t, all, len(Keys()))
	assert.Empty(t, unknown)
	assert.Equal(t, "15", r.Snapshot()[KeyHeartbeatInterval])
}

func TestCatalog(t *testing.T) {
	assert.Len(t, Keys(), 40)
	d, ok := Lookup(KeyNumberOfConnectors)
	require.True(t, ok)
	assert.Equal(t, TypeInteger, d.Type)
	_, ok = Lookup("heartbeatinterval")
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "ocpp.yml")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, found, err := store.Get(KeyHeartbeatInterval)
	require.NoError(t, err)
	assert.False(t, found)

	r := NewRegistry(store, testLogger{})
	r.SetConfiguration(map[string]interface{}{"HeartbeatInterval": "90"})

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	value, found, err := reopened.Get(KeyHeartbeatInterval)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "90", value)
}
