package notificacion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/redprotege/api/internal/config"
)

// SMTP envía correos con go-mail. Cada envío abre su propia conexión.
type SMTP struct {
	host      string
	port      int
	usuario   string
	clave     string
	remitente string
	timeout   time.Duration
}

// NewSMTP construye el transporte; retorna Noop cuando no hay host configurado.
func NewSMTP(cfg config.SMTPConfig) Notificador {
	if !cfg.Habilitado() {
		log.Warn().Msg("notificacion: SMTP_HOST vacío, correos deshabilitados")
		return Noop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTP{
		host:      cfg.Host,
		port:      cfg.Port,
		usuario:   cfg.Usuario,
		clave:     cfg.Clave,
		remitente: cfg.Remitente,
		timeout:   timeout,
	}
}

func (s *SMTP) Enviar(ctx context.Context, m Mensaje) error {
	msg, err := s.construir(m)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.host, s.opciones()...)
	if err != nil {
		return fmt.Errorf("notificacion: cliente smtp: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notificacion: envío smtp: %w", err)
	}

	log.Info().Str("asunto", m.Asunto).Int("destinatarios", len(m.Destinatarios())).Msg("correo enviado")
	return nil
}

func (s *SMTP) construir(m Mensaje) (*mail.Msg, error) {
	para := limpiar(m.Para)
	bcc := limpiar(m.Bcc)
	if len(para) == 0 && len(bcc) == 0 {
		return nil, ErrSinDestinatarios
	}

	msg := mail.NewMsg()
	if err := msg.From(s.remitente); err != nil {
		return nil, fmt.Errorf("notificacion: remitente: %w", err)
	}
	if len(para) > 0 {
		if err := msg.To(para...); err != nil {
			return nil, fmt.Errorf("notificacion: destinatarios: %w", err)
		}
	}
	if len(bcc) > 0 {
		if err := msg.Bcc(bcc...); err != nil {
			return nil, fmt.Errorf("notificacion: copia oculta: %w", err)
		}
	}
	msg.Subject(m.Asunto)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	if m.Adjunto != "" {
		msg.AttachFile(m.Adjunto)
	}
	return msg, nil
}

func (s *SMTP) opciones() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTimeout(s.timeout),
	}
	if s.port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.usuario != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.usuario),
			mail.WithPassword(s.clave),
		)
	}
	return opts
}
