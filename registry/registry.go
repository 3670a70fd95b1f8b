package registry

import (
	"encoding/json"
	"evsim/internal"
	"evsim/ocpp/core"
	"evsim/utility"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Listener is notified after a value was accepted and stored
type Listener interface {
	OnConfigurationChanged(key, value string)
}

type Registry struct {
	store     Store
	logger    internal.LogHandler
	listeners []Listener
}

func NewRegistry(store Store, logger internal.LogHandler) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{store: store, logger: logger}
}

func (r *Registry) AddListener(listener Listener) {
	r.listeners = append(r.listeners, listener)
}

// SetConfiguration applies every entry independently, in key order
func (r *Registry) SetConfiguration(entries map[string]interface{}) []core.KeyStatus {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]core.KeyStatus, 0, len(keys))
	for _, key := range keys {
		status := core.ConfigurationStatusRejected
		if raw, err := rawString(entries[key]); err == nil {
			status = r.set(key, raw, false)
		} else if _, ok := Lookup(key); !ok {
			status = core.ConfigurationStatusNotSupported
		}
		result = append(result, core.KeyStatus{Key: key, Status: status})
	}
	return result
}

// Change is the ChangeConfiguration variant: one key, read-only keys are refused
func (r *Registry) Change(key, value string) core.ConfigurationStatus {
	return r.set(key, value, true)
}

func (r *Registry) set(key, raw string, respectReadonly bool) core.ConfigurationStatus {
	definition, ok := Lookup(key)
	if !ok {
		return core.ConfigurationStatusNotSupported
	}
	if respectReadonly && definition.Readonly {
		return core.ConfigurationStatusRejected
	}
	value, err := definition.Coerce(raw)
	if err != nil {
		r.logger.FeatureEvent(core.SetConfigurationFeatureName, "", fmt.Sprintf("%s rejected: %v", key, err))
		return core.ConfigurationStatusRejected
	}
	if err = r.store.Set(key, value); err != nil {
		r.logger.Error("store configuration "+key, err)
		return core.ConfigurationStatusRejected
	}
	r.logger.FeatureEvent(core.SetConfigurationFeatureName, "", fmt.Sprintf("%s = %s", key, value))
	for _, listener := range r.listeners {
		listener.OnConfigurationChanged(key, value)
	}
	return core.ConfigurationStatusAccepted
}

// Coerce validates a raw value against the key type and returns its canonical form
func (d Definition) Coerce(raw string) (string, error) {
	switch d.Type {
	case TypeBoolean:
		b, err := utility.ToBool(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case TypeInteger:
		i, err := utility.ToInt(raw)
		if err != nil {
			return "", err
		}
		if i < 0 {
			return "", utility.Errf("negative value %d", i)
		}
		if d.Max > 0 && i > d.Max {
			return "", utility.Errf("value %d exceeds %d", i, d.Max)
		}
		return strconv.Itoa(i), nil
	default:
		return raw, nil
	}
}

// rawString turns a decoded JSON value into the string form the coercion works on
func rawString(v interface{}) (string, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case bool:
		return strconv.FormatBool(value), nil
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return "", utility.Err("not a number")
		}
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case json.Number:
		return value.String(), nil
	case int:
		return strconv.Itoa(value), nil
	default:
		return "", utility.Errf("unsupported value type %T", v)
	}
}

// Value returns the stored value or the catalog default
func (r *Registry) Value(key string) (string, bool) {
	definition, ok := Lookup(key)
	if !ok {
		return "", false
	}
	value, found, err := r.store.Get(key)
	if err != nil {
		r.logger.Error("read configuration "+key, err)
	}
	if err != nil || !found {
		if definition.Default == "" {
			return "", false
		}
		return definition.Default, true
	}
	return value, true
}

func (r *Registry) Int(key string) (int, bool) {
	value, ok := r.Value(key)
	if !ok {
		return 0, false
	}
	i, err := utility.ToInt(value)
	if err != nil {
		return 0, false
	}
	return i, true
}

func (r *Registry) Bool(key string) (bool, bool) {
	value, ok := r.Value(key)
	if !ok {
		return false, false
	}
	b, err := utility.ToBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}

// Get answers GetConfiguration; no keys means the whole catalog
func (r *Registry) Get(keys []string) ([]core.ConfigurationKey, []string) {
	if len(keys) == 0 {
		keys = Keys()
	}
	known := make([]core.ConfigurationKey, 0, len(keys))
	var unknown []string
	for _, key := range keys {
		definition, ok := Lookup(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		entry := core.ConfigurationKey{Key: key, Readonly: definition.Readonly}
		if value, ok := r.Value(key); ok {
			v := value
			entry.Value = &v
		}
		known = append(known, entry)
	}
	return known, unknown
}

// Snapshot returns every key that currently has a value
func (r *Registry) Snapshot() map[string]string {
	values := make(map[string]string)
	for _, key := range Keys() {
		if value, ok := r.Value(key); ok {
			values[key] = value
		}
	}
	return values
}
