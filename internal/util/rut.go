package util

import (
	"strconv"
	"strings"
)

// NormalizarRUT quita puntos, guiones y espacios y deja el dígito verificador en mayúscula.
func NormalizarRUT(rut string) string {
	r := strings.NewReplacer(".", "", "-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(rut)))
}

// RUTValido verifica el dígito verificador (módulo 11) de un RUT chileno.
func RUTValido(rut string) bool {
	rut = NormalizarRUT(rut)
	if len(rut) < 8 || len(rut) > 9 {
		return false
	}

	cuerpo, dv := rut[:len(rut)-1], rut[len(rut)-1]
	if _, err := strconv.Atoi(cuerpo); err != nil {
		return false
	}

	suma, factor := 0, 2
	for i := len(cuerpo) - 1; i >= 0; i-- {
		suma += int(cuerpo[i]-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}

	var esperado byte
	switch resto := 11 - suma%11; resto {
	case 11:
		esperado = '0'
	case 10:
		esperado = 'K'
	default:
		esperado = byte('0' + resto)
	}
	return dv == esperado
}

// FormatearRUT devuelve el RUT como 12.345.678-5.
func FormatearRUT(rut string) string {
	rut = NormalizarRUT(rut)
	if len(rut) < 2 {
		return rut
	}
	cuerpo, dv := rut[:len(rut)-1], rut[len(rut)-1:]

	var b strings.Builder
	for i, c := range cuerpo {
		if i > 0 && (len(cuerpo)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return b.String() + "-" + dv
}
