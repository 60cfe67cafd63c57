package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/tixdesk/server/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const welcomeSubject = "Welcome to Tixdesk"

// Service sends transactional email through Resend.
type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// WelcomeData holds data for rendering the welcome email template
type WelcomeData struct {
	Email       string
	CurrentYear int
}

// NewService creates an email service. When email is disabled no Resend
// client is created and sends are logged instead.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendWelcome sends the post-signup welcome email to to.
func (s *Service) SendWelcome(ctx context.Context, to string) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().Msg("email service disabled, skipping welcome email")
		return nil
	}

	htmlBody, err := s.renderTemplate("welcome.html", WelcomeData{
		Email:       to,
		CurrentYear: time.Now().Year(),
	})
	if err != nil {
		return fmt.Errorf("failed to render welcome template: %w", err)
	}

	if err := s.sendViaResend(ctx, message{To: to, Subject: welcomeSubject, HTML: htmlBody, Category: "welcome"}); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}
