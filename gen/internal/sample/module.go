package sample

import "github.com/GabrielCarpr/mediator/bus"

//go:generate go run github.com/GabrielCarpr/mediator/cmd/mediatorgen gen

type Module struct{}

func (Module) ID() string {
	return "sample"
}

func (Module) Services() []bus.Def {
	return nil
}

func (Module) Handlers() []interface{} {
	return []interface{}{
		RegisterHandler{},
		LookupHandler{},
		&Mailer{},
		TailHandler{},
		Validator{},
		Auditor{},
	}
}
