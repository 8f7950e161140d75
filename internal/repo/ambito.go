package repo

import (
	"encoding/json"
)

// Ambito es el alcance de un usuario: global o un ciclo vital concreto.
type Ambito struct {
	ciclo    int64
	definido bool
}

func AmbitoGlobal() Ambito {
	return Ambito{}
}

func AmbitoCiclo(id int64) Ambito {
	return Ambito{ciclo: id, definido: true}
}

// AmbitoDesde convierte la columna nullable ciclo_asignado_id.
func AmbitoDesde(ciclo *int64) Ambito {
	if ciclo == nil {
		return AmbitoGlobal()
	}
	return AmbitoCiclo(*ciclo)
}

func (a Ambito) EsGlobal() bool {
	return !a.definido
}

func (a Ambito) Ciclo() (int64, bool) {
	return a.ciclo, a.definido
}

// Ptr devuelve el valor para persistir (nil = global).
func (a Ambito) Ptr() *int64 {
	if !a.definido {
		return nil
	}
	id := a.ciclo
	return &id
}

func (a Ambito) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Ptr())
}

func (a *Ambito) UnmarshalJSON(data []byte) error {
	var id *int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*a = AmbitoDesde(id)
	return nil
}
