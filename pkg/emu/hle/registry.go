package hle

import (
	"errors"
	"fmt"

	"github.com/nacholabs/nacho/pkg/utils"
)

var (
	// ErrRegistrationConflict reports a duplicate (class, method,
	// signature) registration. Registry setup is a startup-time
	// programming error when it fails.
	ErrRegistrationConflict = errors.New("conflicting registration")
	// ErrNotFound reports a (class, method) pair absent from the registry
	ErrNotFound = errors.New("not registered")
)

// Handler implements one emulated platform method. It receives marshaled
// arguments and returns a marshaled result.
type Handler func(env *Env, args []Value) (Value, error)

// Method is a resolved registry entry
type Method struct {
	Class string
	Name  string
	Sig   Signature
	fn    Handler
}

// Invoke calls the handler with already-marshaled arguments
func (m *Method) Invoke(env *Env, args []Value) (Value, error) {
	return m.fn(env, args)
}

func (m *Method) String() string {
	return fmt.Sprintf("%s.%s%v", m.Class, m.Name, m.Sig)
}

// ClassDescriptor catalogs the methods of one emulated platform class.
// Immutable after the registry is frozen.
type ClassDescriptor struct {
	Name string
	// Keyed by method name and signature, so a name may carry overloads
	methods map[string][]*Method
}

// Registry catalogs emulated platform classes. It is populated once during
// process initialization, frozen, and read-only ever after; resolution takes
// no locks.
type Registry struct {
	classes map[string]*ClassDescriptor
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*ClassDescriptor)}
}

// Register adds a handler for (class, method, signature). Duplicate
// registrations for the same triple fail with ErrRegistrationConflict.
// Registering on a frozen registry is a programming error and panics.
func (r *Registry) Register(class, method string, sig Signature, handler Handler) error {
	if r.frozen {
		panic("hle: register on frozen registry")
	}

	descriptor, hasClass := r.classes[class]
	if !hasClass {
		descriptor = &ClassDescriptor{Name: class, methods: make(map[string][]*Method)}
		r.classes[class] = descriptor
	}

	for _, existing := range descriptor.methods[method] {
		if existing.Sig.String() == sig.String() {
			return utils.MakeError(ErrRegistrationConflict, "%s.%s%v", class, method, sig)
		}
	}

	descriptor.methods[method] = append(descriptor.methods[method], &Method{
		Class: class,
		Name:  method,
		Sig:   sig,
		fn:    handler,
	})

	return nil
}

// Freeze makes the registry read-only. Called once at the end of startup.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Resolve finds the handler registered for (class, method, signature)
func (r *Registry) Resolve(class, method string, sig Signature) (*Method, error) {
	descriptor, hasClass := r.classes[class]
	if !hasClass {
		return nil, utils.MakeError(ErrNotFound, "class %s", class)
	}

	for _, candidate := range descriptor.methods[method] {
		if candidate.Sig.String() == sig.String() {
			return candidate, nil
		}
	}

	return nil, utils.MakeError(ErrNotFound, "%s.%s%v", class, method, sig)
}

// ResolveName finds the method registered for (class, method) when exactly
// one signature carries that name. Symbolic call targets carry no signature,
// so this is the resolution used by the call router.
func (r *Registry) ResolveName(class, method string) (*Method, error) {
	descriptor, hasClass := r.classes[class]
	if !hasClass {
		return nil, utils.MakeError(ErrNotFound, "class %s", class)
	}

	candidates := descriptor.methods[method]
	switch len(candidates) {
	case 0:
		return nil, utils.MakeError(ErrNotFound, "%s.%s", class, method)
	case 1:
		return candidates[0], nil
	}

	return nil, utils.MakeError(ErrNotFound, "%s.%s is ambiguous (%d overloads)", class, method, len(candidates))
}
