package util

import (
	"sync/atomic"
	"time"
)

var zona atomic.Pointer[time.Location]

// ConfigurarZona define la zona horaria usada por Now.
func ConfigurarZona(nombre string) error {
	loc, err := time.LoadLocation(nombre)
	if err != nil {
		return err
	}
	zona.Store(loc)
	return nil
}

// Now retorna la hora actual en la zona configurada (UTC por defecto).
func Now() time.Time {
	if loc := zona.Load(); loc != nil {
		return time.Now().In(loc)
	}
	return time.Now().UTC()
}
