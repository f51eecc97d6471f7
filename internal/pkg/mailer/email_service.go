package mailer

import (
	"fmt"
	"strings"
	"time"

	"classlive-be/internal/entity"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendSessionSummary(toEmail string, session *entity.Session) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
}

func NewEmailService(host string, port int, username, password, senderEmail string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	return &emailService{
		dialer:      d,
		senderEmail: senderEmail,
	}
}

// SendSessionSummary mails the teacher an attendance recap when a session
// ends. Best-effort: the caller logs failures and moves on.
func (s *emailService) SendSessionSummary(toEmail string, session *entity.Session) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("Session summary: %s", session.LessonName))

	var rows strings.Builder
	for _, record := range session.FinalAttendance {
		spent := time.Duration(record.TimeSpentSeconds) * time.Second
		rows.WriteString(fmt.Sprintf(
			"<tr><td>%s</td><td>%s</td></tr>",
			record.StudentName, spent.Round(time.Second),
		))
	}

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>%s</h2>
			<p>Duration: %s &mdash; %d students attended, %.0f%% completed.</p>
			<table border="0" cellpadding="4">
				<tr><th align="left">Student</th><th align="left">Time in session</th></tr>
				%s
			</table>
		</div>
	`,
		session.LessonName,
		(time.Duration(session.DurationSeconds) * time.Second).Round(time.Second),
		session.AttendanceCount,
		session.CompletionRate*100,
		rows.String(),
	)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send session summary to %s: %w", toEmail, err)
	}
	return nil
}
