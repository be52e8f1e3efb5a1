package service

import (
	"context"
	"fmt"
	"log"
	"time"

	mail "github.com/go-mail/mail/v2"
	"github.com/openshelf/library-backend/models"
	"github.com/openshelf/library-backend/store"
)

// Notifier sends loan emails over SMTP and records every successful send in
// the email_logs collection. All sends are best-effort: failures are logged
// and never surfaced to the request that triggered them.
type Notifier struct {
	DB       *store.DB
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (n *Notifier) send(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", n.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(n.Host, n.Port, n.Username, n.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	return d.DialAndSend(m)
}

func (n *Notifier) logSend(user *models.User, isbn, kind string) {
	entry := &models.EmailLog{
		UserID:  user.ID,
		ToEmail: user.Email,
		ISBN:    isbn,
		Kind:    kind,
		SentAt:  time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.DB.InsertEmailLog(ctx, entry); err != nil {
		log.Printf("notifier: record %s email for %s: %v", kind, user.Email, err)
	}
}

// SendLoanReceipt mails the borrower a confirmation after a successful issue.
func (n *Notifier) SendLoanReceipt(user *models.User, loan models.Loan) {
	body := fmt.Sprintf(
		"Hi %s,\n\nYou borrowed %q by %s (ISBN %s).\nIt is due back on %s.\n\nYour library\n",
		user.Name, loan.Title, loan.Author, loan.ISBN,
		loan.DueDate.Format("January 2, 2006"),
	)
	if err := n.send(user.Email, "Loan receipt: "+loan.Title, body); err != nil {
		log.Printf("notifier: loan receipt to %s: %v", user.Email, err)
		return
	}
	n.logSend(user, loan.ISBN, models.EmailKindReceipt)
}

// SendOverdueNotice mails the borrower that a loan is past its due date.
func (n *Notifier) SendOverdueNotice(user *models.User, loan models.Loan) {
	body := fmt.Sprintf(
		"Hi %s,\n\n%q by %s (ISBN %s) was due on %s.\nPlease return or renew it.\n\nYour library\n",
		user.Name, loan.Title, loan.Author, loan.ISBN,
		loan.DueDate.Format("January 2, 2006"),
	)
	if err := n.send(user.Email, "Overdue: "+loan.Title, body); err != nil {
		log.Printf("notifier: overdue notice to %s: %v", user.Email, err)
		return
	}
	n.logSend(user, loan.ISBN, models.EmailKindOverdue)
}
