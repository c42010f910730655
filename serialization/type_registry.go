package serialization

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/relaykit/relay-go/contracts"
)

// TypeRegistry resolves abstract "pkg/Name" identifiers into concrete message
// types. Resolution failures happen at endpoint construction, never while a
// call is in flight.
type TypeRegistry interface {
	// Register registers a message type under a "pkg/Name" identifier
	Register(typeName string, msgType interface{}) error

	// Resolve retrieves the type registered for a given identifier
	Resolve(typeName string) (reflect.Type, error)

	// NewInstance creates a pointer to a fresh instance of the registered type
	NewInstance(typeName string) (interface{}, error)

	// IsRegistered checks if an identifier is registered
	IsRegistered(typeName string) bool

	// ListTypes returns all registered identifiers
	ListTypes() []string
}

// DefaultTypeRegistry is the default implementation of TypeRegistry
type DefaultTypeRegistry struct {
	types map[string]reflect.Type
	mu    sync.RWMutex
}

// NewTypeRegistry creates a new type registry
func NewTypeRegistry() *DefaultTypeRegistry {
	return &DefaultTypeRegistry{
		types: make(map[string]reflect.Type),
	}
}

// ValidateTypeName checks that an identifier has the pkg/Name form.
func ValidateTypeName(typeName string) error {
	parts := strings.Split(typeName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("type name %q is not valid, must be of the form pkg/Name", typeName)
	}
	return nil
}

// Register registers a message type under a "pkg/Name" identifier
func (r *DefaultTypeRegistry) Register(typeName string, msgType interface{}) error {
	if err := ValidateTypeName(typeName); err != nil {
		return err
	}
	if msgType == nil {
		return fmt.Errorf("message type cannot be nil")
	}

	t := reflect.TypeOf(msgType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("message type must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type name %s already registered to %v", typeName, existing)
	}

	r.types[typeName] = t
	return nil
}

// Resolve retrieves the type registered for a given identifier
func (r *DefaultTypeRegistry) Resolve(typeName string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[typeName]
	if !exists {
		return nil, fmt.Errorf("type %s not registered", typeName)
	}

	return t, nil
}

// NewInstance creates a pointer to a fresh instance of the registered type
func (r *DefaultTypeRegistry) NewInstance(typeName string) (interface{}, error) {
	t, err := r.Resolve(typeName)
	if err != nil {
		return nil, err
	}

	return reflect.New(t).Interface(), nil
}

// IsRegistered checks if an identifier is registered
func (r *DefaultTypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[typeName]
	return exists
}

// ListTypes returns all registered identifiers
func (r *DefaultTypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for typeName := range r.types {
		types = append(types, typeName)
	}

	return types
}

// DecodePayload unmarshals an envelope payload into a fresh instance of the
// registered type for typeName.
func (r *DefaultTypeRegistry) DecodePayload(typeName string, payload json.RawMessage) (interface{}, error) {
	instance, err := r.NewInstance(typeName)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, instance); err != nil {
		return nil, fmt.Errorf("failed to decode payload as %s: %w", typeName, err)
	}

	return instance, nil
}

// EncodeEnvelope serializes an envelope for transport
func EncodeEnvelope(env *contracts.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}
	return json.Marshal(env)
}

// DecodeEnvelope deserializes an envelope received from transport
func DecodeEnvelope(data []byte) (*contracts.Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var env contracts.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &env, nil
}
