package modelregistry

import (
	"fmt"
	"reflect"
	"sync"
)

// RequestRules defines which operations a registered request may be used for
// when it is looked up by name, e.g. to replay a recorded event.
type RequestRules struct {
	CanQuery  bool
	CanCreate bool
	CanUpdate bool
	CanPatch  bool
	CanDelete bool
	CanSave   bool
	CanReplay bool
}

// DefaultRequestRules returns the default rules for a request (everything allowed)
func DefaultRequestRules() RequestRules {
	return RequestRules{
		CanQuery:  true,
		CanCreate: true,
		CanUpdate: true,
		CanPatch:  true,
		CanDelete: true,
		CanSave:   true,
		CanReplay: true,
	}
}

// Allows reports whether the rules permit the named operation.
func (r RequestRules) Allows(operation string) bool {
	switch operation {
	case "query":
		return r.CanQuery
	case "create":
		return r.CanCreate
	case "update":
		return r.CanUpdate
	case "patch":
		return r.CanPatch
	case "delete":
		return r.CanDelete
	case "save":
		return r.CanSave
	case "replay":
		return r.CanReplay
	}
	return false
}

// DefaultModelRegistry maps request names onto request types.
type DefaultModelRegistry struct {
	models map[string]reflect.Type
	rules  map[string]RequestRules
	mutex  sync.RWMutex
}

// NewModelRegistry creates a new model registry
func NewModelRegistry() *DefaultModelRegistry {
	return &DefaultModelRegistry{
		models: make(map[string]reflect.Type),
		rules:  make(map[string]RequestRules),
	}
}

// RegisterModel registers the struct type of model under name. Pointers,
// slices and arrays are unwrapped to their struct.
func (r *DefaultModelRegistry) RegisterModel(name string, model interface{}) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.models[name]; exists {
		return fmt.Errorf("model %s already registered", name)
	}

	modelType := reflect.TypeOf(model)
	if modelType == nil {
		return fmt.Errorf("model cannot be nil")
	}
	if t, ok := model.(reflect.Type); ok {
		modelType = t
	}
	originalType := modelType

	for modelType.Kind() == reflect.Ptr || modelType.Kind() == reflect.Slice || modelType.Kind() == reflect.Array {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct or pointer to struct, got %s", originalType.String())
	}

	r.models[name] = modelType
	if _, exists := r.rules[name]; !exists {
		r.rules[name] = DefaultRequestRules()
	}
	return nil
}

// GetModel returns the registered struct type.
func (r *DefaultModelRegistry) GetModel(name string) (reflect.Type, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	model, exists := r.models[name]
	if !exists {
		return nil, fmt.Errorf("model %s not found", name)
	}
	return model, nil
}

// New returns a pointer to a new zero value of the registered type.
func (r *DefaultModelRegistry) New(name string) (interface{}, error) {
	typ, err := r.GetModel(name)
	if err != nil {
		return nil, err
	}
	return reflect.New(typ).Interface(), nil
}

// SetModelRules sets the rules for a specific model
func (r *DefaultModelRegistry) SetModelRules(name string, rules RequestRules) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.models[name]; !exists {
		return fmt.Errorf("model %s not found", name)
	}
	r.rules[name] = rules
	return nil
}

// GetModelRules retrieves the rules for a specific model
// Returns default rules if model exists but rules are not set
func (r *DefaultModelRegistry) GetModelRules(name string) (RequestRules, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if _, exists := r.models[name]; !exists {
		return RequestRules{}, fmt.Errorf("model %s not found", name)
	}
	if rules, exists := r.rules[name]; exists {
		return rules, nil
	}
	return DefaultRequestRules(), nil
}

// RegisterModelWithRules registers a model with specific rules
func (r *DefaultModelRegistry) RegisterModelWithRules(name string, model interface{}, rules RequestRules) error {
	if err := r.RegisterModel(name, model); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rules[name] = rules
	return nil
}
