package email

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"os"
)

// EmailService sends transactional mail over SMTP. It satisfies
// account.Notifier.
type EmailService struct {
	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	frontendURL  string
}

// NewEmailService creates a new email service from environment variables.
func NewEmailService() *EmailService {
	return &EmailService{
		smtpHost:     os.Getenv("SMTP_HOST"),
		smtpPort:     os.Getenv("SMTP_PORT"),
		smtpUsername: os.Getenv("SMTP_USERNAME"),
		smtpPassword: os.Getenv("SMTP_PASSWORD"),
		fromEmail:    os.Getenv("FROM_EMAIL"),
		frontendURL:  os.Getenv("FRONTEND_URL"),
	}
}

// SendPasswordResetEmail sends an email with a password reset link.
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	subject := "Reset Your Referly Password"
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)

	body := fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<body>
		<h2>Hello,</h2>
		<p>We received a request to reset your Referly password. Click the link below to create a new password:</p>
		<p><a href="%s">Reset Password</a></p>
		<p>Or copy and paste this link in your browser: %s</p>
		<p>This link will expire in 24 hours.</p>
		<p>If you did not request a password reset, please ignore this email.</p>
		<p>Best regards,<br>The Referly Team</p>
	</body>
	</html>
	`, resetLink, resetLink)

	return s.sendEmail(ctx, toEmail, subject, body)
}

// SendWelcomeEmail sends the post-signup welcome mail.
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail string) error {
	subject := "Welcome to Referly"

	body := `
	<!DOCTYPE html>
	<html>
	<body>
		<h2>Welcome!</h2>
		<p>Your Referly account is ready. Generate a referral code from your dashboard and start inviting friends.</p>
		<p>Best regards,<br>The Referly Team</p>
	</body>
	</html>
	`

	return s.sendEmail(ctx, toEmail, subject, body)
}

// sendEmail sends an email with HTML content.
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody string) error {
	if s.smtpHost == "" || s.smtpPort == "" || s.smtpUsername == "" || s.smtpPassword == "" {
		log.Println("Email service not configured properly. Check environment variables.")
		return fmt.Errorf("email service not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	from := fmt.Sprintf("From: Referly <%s>\n", s.fromEmail)
	to := fmt.Sprintf("To: %s\n", toEmail)
	subject = fmt.Sprintf("Subject: %s\n", subject)

	message := []byte(from + to + subject + mime + htmlBody)

	auth := smtp.PlainAuth("", s.smtpUsername, s.smtpPassword, s.smtpHost)
	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)

	return smtp.SendMail(addr, auth, s.fromEmail, []string{toEmail}, message)
}
