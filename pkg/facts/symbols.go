package facts

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
)

// Symbols exposes this package to interpreted fact scripts. The loader
// registers it on every interpreter it creates.
func Symbols() interp.Exports {
	return interp.Exports{
		"factual/pkg/facts/facts": {
			"NewRegistrar":       reflect.ValueOf(NewRegistrar),
			"DefaultGenerations": reflect.ValueOf(DefaultGenerations),

			"Registrar": reflect.ValueOf((*Registrar)(nil)),
			"Meta":      reflect.ValueOf((*Meta)(nil)),
			"T":         reflect.ValueOf((*T)(nil)),
			"Checker":   reflect.ValueOf((*Checker)(nil)),
		},
	}
}
