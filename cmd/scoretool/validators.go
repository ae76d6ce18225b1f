package main

import (
	"github.com/auditmed/report-scoring/modules/scoring/services"
	"github.com/auditmed/report-scoring/pkg/docvalue"
)

// builtinValidators registers the trigger logic behind the catalog's
// hasValidator rules. The insurer forms model these fields as checkbox
// groups where marking more than one option is a contradiction.
func builtinValidators() *services.Validators {
	v := services.NewValidators()
	mustRegister(v, "origen_excluyente", exclusiveChoice("padecimiento.origen", "Congénito", "Adquirido"))
	mustRegister(v, "evolucion_excluyente", exclusiveChoice("padecimiento.evolucion", "Agudo", "Crónico"))
	mustRegister(v, "causa_atencion_unica", exclusiveChoice("padecimiento.causa_atencion",
		"Enfermedad", "Accidente", "Embarazo"))
	mustRegister(v, "tipo_estancia_unica", exclusiveChoice("hospitalizacion.tipo_estancia",
		"Ambulatoria", "Corta estancia", "Hospitalización"))
	return v
}

func mustRegister(v *services.Validators, key string, fn services.ValidatorFunc) {
	if err := v.Register(key, fn); err != nil {
		fatal(err)
	}
}

// exclusiveChoice triggers when two or more of the reference options
// are marked in the array at path.
func exclusiveChoice(path string, options ...string) services.ValidatorFunc {
	return func(doc docvalue.Value) bool {
		node, ok := docvalue.Resolve(doc, path)
		if !ok {
			return false
		}
		items, ok := node.Array()
		if !ok {
			return false
		}
		marked := 0
		for _, option := range options {
			for _, item := range items {
				if item.Text() == option {
					marked++
					break
				}
			}
		}
		return marked >= 2
	}
}
