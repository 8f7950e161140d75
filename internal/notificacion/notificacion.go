// Package notificacion envía los correos del flujo de casos.
//
// Todo envío es best-effort: quien llama registra el resultado y nunca
// revierte el estado ya persistido por un fallo de transporte.
package notificacion

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoConfigurado indica que no hay transporte SMTP disponible.
	ErrNoConfigurado = errors.New("notificacion: correo no configurado")
	// ErrSinDestinatarios se retorna cuando el mensaje no tiene a quién enviarse.
	ErrSinDestinatarios = errors.New("notificacion: mensaje sin destinatarios")
)

// Mensaje es un correo HTML con un adjunto opcional (ruta local).
type Mensaje struct {
	Para    []string
	Bcc     []string
	Asunto  string
	HTML    string
	Adjunto string
}

// Destinatarios retorna todas las direcciones, sin vacíos ni duplicados.
func (m Mensaje) Destinatarios() []string {
	vistos := make(map[string]struct{})
	var out []string
	for _, lista := range [][]string{m.Para, m.Bcc} {
		for _, d := range lista {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			clave := strings.ToLower(d)
			if _, ok := vistos[clave]; ok {
				continue
			}
			vistos[clave] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

// Notificador despacha un mensaje.
type Notificador interface {
	Enviar(ctx context.Context, m Mensaje) error
}

// Noop descarta los mensajes y reporta ErrNoConfigurado para que el fallo quede auditado.
type Noop struct{}

func (Noop) Enviar(ctx context.Context, m Mensaje) error {
	return ErrNoConfigurado
}

func limpiar(lista []string) []string {
	out := make([]string, 0, len(lista))
	for _, d := range lista {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
