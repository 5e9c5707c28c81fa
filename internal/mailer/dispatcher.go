package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"catalog-api/internal/models"
	"catalog-api/internal/util"
)

// Outcome is the explicit result of a best-effort delivery. A failed
// outcome is recorded by the caller, never propagated as an error; the
// enclosing registration always completes.
type Outcome struct {
	Delivered bool
	Err       error
}

func delivered() Outcome {
	return Outcome{Delivered: true}
}

func failed(err error) Outcome {
	return Outcome{Err: err}
}

// DispatcherConfig carries the injected deployment values: the public
// origin for verification links and the sender identity.
type DispatcherConfig struct {
	BaseURL  string
	From     string
	FromName string
	Enabled  bool
}

// Dispatcher sends verification emails.
type Dispatcher struct {
	sender Sender
	config DispatcherConfig
	logger *zap.Logger
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// VerificationLink builds the URL the recipient clicks.
func (d *Dispatcher) VerificationLink(code string) string {
	return fmt.Sprintf("%s/users/verify?code=%s", d.config.BaseURL, code)
}

// SendVerification delivers the verification link to the account's email
// address. It never returns an error: transport failures come back as a
// failed Outcome for the caller to report.
func (d *Dispatcher) SendVerification(ctx context.Context, account *models.Account, code string) Outcome {
	if !d.config.Enabled {
		d.logger.Debug("Email delivery disabled, skipping verification mail",
			util.String("account_id", account.AccountID))
		return delivered()
	}

	link := d.VerificationLink(code)

	msg := Message{
		To:       account.EmailAddress,
		ToName:   account.FullName,
		Subject:  "Verify your Catalog account",
		HTMLBody: fmt.Sprintf(`To verify your account, please click the following link: <a href="%s">%s</a>`, link, link),
		TextBody: fmt.Sprintf("To verify your account, please follow this link: %s", link),
		From:     d.config.From,
		FromName: d.config.FromName,
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Warn("Verification email delivery failed",
			util.String("account_id", account.AccountID),
			util.ErrorField(err))
		return failed(err)
	}

	d.logger.Info("Verification email sent",
		util.String("account_id", account.AccountID))
	return delivered()
}
