package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/config"
	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/events"
	"github.com/superpool/dispute-service/internal/observability"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func escalatedTicket() *domain.Ticket {
	at := time.Date(2024, 7, 28, 10, 0, 0, 0, time.UTC)
	return &domain.Ticket{
		ID:          "t1",
		ExternalKey: "DSP-0000ABCD",
		Category:    domain.TicketCategoryClaim,
		Priority:    domain.TicketPriorityCritical,
		Status:      domain.TicketStatusEscalated,
		MerchantID:  "merch-1",
		History: []domain.TicketHistory{
			{Seq: 1, Action: domain.HistoryActionCreated, ActorID: "cust-1", Timestamp: at.Add(-2 * time.Hour)},
			{Seq: 2, Action: domain.HistoryActionEscalated, ActorID: domain.SystemActorID, Timestamp: at, Note: "no status change for 2h0m0s"},
		},
	}
}

func TestNotificationDeliversEmailAndWebhook(t *testing.T) {
	var (
		mu       sync.Mutex
		received []events.Event
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event events.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err == nil {
			mu.Lock()
			received = append(received, event)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	mailer := &fakeMailer{}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	svc := NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Mailer:     mailer,
		Logger:     zap.NewNop(),
		Config:     config.NotificationConfig{WebhookURL: server.URL, QueueSize: 8},
	})
	svc.RegisterHandlers()

	svc.Notify(context.Background(), domain.HistoryActionEscalated, escalatedTicket(), []string{"ops@superpool.test", "lead@superpool.test"})
	require.Equal(t, 1, svc.Queue().Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Queue().Drain(ctx, dispatcher, zap.NewNop())

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, []string{"ops@superpool.test", "lead@superpool.test"}, mail.to)
	assert.Equal(t, "[DSP-0000ABCD] Dispute escalated", mail.subject)
	assert.Contains(t, mail.body, "no status change for 2h0m0s")
	assert.Contains(t, mail.body, "By system at 2024-07-28T10:00:00Z")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, events.EventTicketEscalated, received[0].Type)
	assert.Equal(t, "t1", received[0].TicketID)
}

func TestNotificationWithoutRecipientsSkipsEmail(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("must not be called")}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	svc := NewNotificationService(NotificationDependencies{Dispatcher: dispatcher, Mailer: mailer, Config: config.NotificationConfig{QueueSize: 1}})
	svc.RegisterHandlers()

	ticket := escalatedTicket()
	ticket.History = ticket.History[:1]
	event := events.NewTicketEvent("e1", events.EventTicketCreated, ticket, nil, time.Now())
	assert.NoError(t, dispatcher.Publish(context.Background(), event))
}

func TestNotificationQueueOverflowIsCounted(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := NewNotificationService(NotificationDependencies{Metrics: metrics, Mailer: &fakeMailer{}, Config: config.NotificationConfig{QueueSize: 1}})

	svc.Notify(context.Background(), domain.HistoryActionResolved, escalatedTicket(), nil)
	svc.Notify(context.Background(), domain.HistoryActionClosed, escalatedTicket(), nil)

	assert.Equal(t, 1, svc.Queue().Len())
	assert.Equal(t, int64(1), metrics.Snapshot().NotifyDropped)
}

// smtpSink is a minimal SMTP server that records one message.
type smtpSink struct {
	addr string
	got  chan string
}

func newSMTPSink(t *testing.T) *smtpSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	sink := &smtpSink{addr: ln.Addr().String(), got: make(chan string, 1)}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		var transcript strings.Builder
		_ = tp.PrintfLine("220 sink ready")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 sink")
			case "MAIL", "RCPT":
				transcript.WriteString(line + "\n")
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				transcript.Write(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				sink.got <- transcript.String()
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return sink
}

func smtpConfigFor(t *testing.T, addr string) config.NotificationConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.NotificationConfig{SMTPHost: host, SMTPPort: port, EmailFrom: "disputes@superpool.test"}
}

func TestSMTPMailerDelivers(t *testing.T) {
	sink := newSMTPSink(t)
	at := time.Date(2024, 7, 28, 9, 0, 0, 0, time.UTC)
	mailer := &smtpMailer{cfg: smtpConfigFor(t, sink.addr), timeout: 5 * time.Second, now: func() time.Time { return at }}

	err := mailer.Send(context.Background(), []string{"ops@superpool.test", "lead@superpool.test"}, "[DSP-1] Dispute escalated", "line one\nline two")
	require.NoError(t, err)

	select {
	case transcript := <-sink.got:
		assert.Contains(t, transcript, "MAIL FROM:<disputes@superpool.test>")
		assert.Contains(t, transcript, "RCPT TO:<ops@superpool.test>")
		assert.Contains(t, transcript, "RCPT TO:<lead@superpool.test>")
		assert.Contains(t, transcript, "Subject: [DSP-1] Dispute escalated")
		assert.Contains(t, transcript, "line one\nline two")
	case <-time.After(2 * time.Second):
		t.Fatal("sink received nothing")
	}
}

func TestSMTPMailerGivesUpOnSilentRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		// Accept and never send the greeting.
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(io.Discard, conn)
	}()

	mailer := &smtpMailer{cfg: smtpConfigFor(t, ln.Addr().String()), timeout: 200 * time.Millisecond, now: time.Now}
	started := time.Now()
	err = mailer.Send(context.Background(), []string{"ops@superpool.test"}, "s", "b")
	require.Error(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	mailer.timeout = time.Minute
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	started = time.Now()
	err = mailer.Send(ctx, []string{"ops@superpool.test"}, "s", "b")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestBuildMessage(t *testing.T) {
	at := time.Date(2024, 7, 28, 9, 0, 0, 0, time.UTC)
	msg := string(buildMessage("disputes@superpool.test", []string{"ops@superpool.test"}, "[DSP-1] Dispute escalated", "line one\nline two", at))
	assert.True(t, strings.HasPrefix(msg, "From: disputes@superpool.test\r\nTo: ops@superpool.test\r\nSubject: [DSP-1] Dispute escalated\r\n"))
	assert.Contains(t, msg, "Date: "+at.Format(time.RFC1123Z))
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two"))
}

func TestNewMailerFallsBackToLogging(t *testing.T) {
	mailer := NewMailer(config.NotificationConfig{}, zap.NewNop())
	_, ok := mailer.(*logMailer)
	assert.True(t, ok)
	assert.NoError(t, mailer.Send(context.Background(), []string{"a@b"}, "s", "b"))
}
