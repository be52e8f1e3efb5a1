package service

import (
	"context"
	"log"
	"time"

	"github.com/openshelf/library-backend/store"
)

// OverdueScanner periodically looks for open loans past their due date and
// mails the borrower. The email_logs collection is used to send at most one
// notice per outstanding loan.
type OverdueScanner struct {
	DB       *store.DB
	Notifier *Notifier
	Interval time.Duration
}

// Start launches the scan loop in a goroutine. It stops when ctx is
// cancelled.
func (s *OverdueScanner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.scan(ctx)
			}
		}
	}()
}

func (s *OverdueScanner) scan(ctx context.Context) {
	now := time.Now()
	users, err := s.DB.UsersWithOverdueLoans(ctx, now)
	if err != nil {
		log.Printf("overdue scan: %v", err)
		return
	}
	for i := range users {
		user := &users[i]
		for _, loan := range user.IssuedBooks {
			if loan.Returned || !loan.DueDate.Before(now) {
				continue
			}
			sent, err := s.DB.HasOverdueNotice(ctx, user.ID, loan.ISBN)
			if err != nil {
				log.Printf("overdue scan: check notice for %s: %v", user.UserName, err)
				continue
			}
			if sent {
				continue
			}
			s.Notifier.SendOverdueNotice(user, loan)
		}
	}
}
