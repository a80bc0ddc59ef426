package bus

// Module is a bounded context plugged into the bus. Services defines the module's
// container services, Handlers lists the prototypes the reflective scan inspects for
// handler and processor methods, and ID keys the scan cache.
type Module interface {
	ID() string
	Services() []Def
	Handlers() []interface{}
}

// GeneratedModule is a Module with a binding table, usually written by mediatorgen
type GeneratedModule interface {
	Module
	Bindings() []Binding
}

// FuncModule is a Module made of funcs, convenient in tests and small apps
type FuncModule struct {
	Name         string
	ServicesFunc func() []Def
	HandlersFunc func() []interface{}
	BindingsFunc func() []Binding
}

func (m FuncModule) ID() string {
	return m.Name
}

func (m FuncModule) Services() []Def {
	if m.ServicesFunc == nil {
		return nil
	}
	return m.ServicesFunc()
}

func (m FuncModule) Handlers() []interface{} {
	if m.HandlersFunc == nil {
		return nil
	}
	return m.HandlersFunc()
}

func (m FuncModule) Bindings() []Binding {
	if m.BindingsFunc == nil {
		return nil
	}
	return m.BindingsFunc()
}

var _ GeneratedModule = FuncModule{}
