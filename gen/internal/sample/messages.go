// Package sample is a module whose binding table is generated by mediatorgen
package sample

import "github.com/GabrielCarpr/mediator/bus"

type Register struct {
	bus.CommandType[string]
	Email string `json:"email"`
}

type Lookup struct {
	bus.QueryType[int]
	Email string `json:"email"`
}

type Registered struct {
	bus.EventType
	Email string `json:"email"`
}

type Tail struct {
	bus.StreamType[string]
	N int `json:"n"`
}
