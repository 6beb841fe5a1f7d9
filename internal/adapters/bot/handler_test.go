package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
	"slack-steward/internal/usecase/chanlog"
	"slack-steward/internal/usecase/donations"
)

type memStateRepo struct {
	buckets map[domain.DonationStatus]map[string]domain.DonationRecord
	log     domain.ChannelLog
	total   float64
	guard   sync.Mutex
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{
		buckets: map[domain.DonationStatus]map[string]domain.DonationRecord{},
		log:     domain.ChannelLog{},
	}
}

func (m *memStateRepo) LoadBucket(_ context.Context, status domain.DonationStatus) (map[string]domain.DonationRecord, error) {
	out := map[string]domain.DonationRecord{}
	for fp, record := range m.buckets[status] {
		out[fp] = record
	}
	return out, nil
}

func (m *memStateRepo) SaveBucket(_ context.Context, status domain.DonationStatus, bucket map[string]domain.DonationRecord) error {
	m.buckets[status] = bucket
	return nil
}

func (m *memStateRepo) SaveTotal(_ context.Context, total float64) error {
	m.total = total
	return nil
}

func (m *memStateRepo) Load(context.Context) (domain.ChannelLog, error) { return m.log, nil }

func (m *memStateRepo) Save(_ context.Context, log domain.ChannelLog) error {
	m.log = log
	return nil
}

func (m *memStateRepo) Lock(context.Context) (func(), error) {
	m.guard.Lock()
	return m.guard.Unlock, nil
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string) error { return nil }

type stubUsers struct{}

func (stubUsers) DisplayName(context.Context, string) (string, error) { return "Test User", nil }
func (stubUsers) Username(context.Context, string) (string, error)    { return "tester", nil }

type stubPublisher struct{ calls int }

func (p *stubPublisher) Publish(context.Context, map[string]domain.DonationRecord, float64) (string, error) {
	p.calls++
	return "https://github.com/org/site/pull/1", nil
}

type stubDirectory struct{}

func (stubDirectory) ListChannels(context.Context) ([]domain.Channel, error) { return nil, nil }
func (stubDirectory) ChannelName(context.Context, string) (string, error)    { return "general", nil }
func (stubDirectory) Activity(context.Context, string) (domain.ChannelActivity, error) {
	return domain.ChannelActivity{}, nil
}
func (stubDirectory) Archive(context.Context, string) error          { return nil }
func (stubDirectory) SetTopic(context.Context, string, string) error { return nil }

func newTestHandler(t *testing.T) (*Handler, *memStateRepo) {
	t.Helper()
	repo := newMemStateRepo()
	donationSvc := donations.NewService(
		repo, nopNotifier{}, stubUsers{}, &stubPublisher{}, stubDirectory{},
		donations.Channels{Review: "C0REVIEW", Report: "C0REPORT", Admin: "C0ADMIN"},
		"/steward", zerolog.Nop(),
	)
	chanlogSvc := chanlog.NewService(repo, nopNotifier{}, "C0MON", "C0ADMIN", zerolog.Nop())
	return NewHandler(donationSvc, chanlogSvc, []string{"UADMIN"}, "/steward", zerolog.Nop()), repo
}

func TestHandleDonationReportFlow(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	reply := h.Handle(ctx, "U1", "donation report $20.99 https://files/receipt.pdf --make-public")
	if !strings.Contains(reply, "Your donation of $20.99 has been reported") {
		t.Fatalf("неожиданный ответ на report: %q", reply)
	}
	if strings.Contains(reply, "private") {
		t.Fatalf("публичное пожертвование не должно упоминать приватность: %q", reply)
	}

	fp := donations.Fingerprint("U1", "$20.99", "https://files/receipt.pdf")
	reply = h.Handle(ctx, "UADMIN", "donation confirm "+fp)
	if !strings.Contains(reply, "confirmed") {
		t.Fatalf("неожиданный ответ на confirm: %q", reply)
	}
}

func TestHandleDonationReportPrivateMentionsPrivacy(t *testing.T) {
	h, _ := newTestHandler(t)

	reply := h.Handle(context.Background(), "U1", "donation report $10 https://files/r.pdf")
	if !strings.Contains(reply, "we won't publicize your name") {
		t.Fatalf("приватный ответ должен упоминать анонимность: %q", reply)
	}
}

func TestHandleDonationReportMissingReceipt(t *testing.T) {
	h, _ := newTestHandler(t)

	reply := h.Handle(context.Background(), "U1", "donation report $20.99")
	if !strings.HasPrefix(reply, "Error: No Receipt.") {
		t.Fatalf("ожидали ошибку про чек: %q", reply)
	}
}

func TestHandleDonationReportBadAmount(t *testing.T) {
	h, _ := newTestHandler(t)

	reply := h.Handle(context.Background(), "U1", "donation report 20.99 https://files/r.pdf")
	if reply != amountFormatReply {
		t.Fatalf("ожидали ошибку формата суммы: %q", reply)
	}

	reply = h.Handle(context.Background(), "U1", "donation report $-5 https://files/r.pdf")
	if reply != notPositiveReply {
		t.Fatalf("ожидали ошибку про положительную сумму: %q", reply)
	}
}

func TestHandleDonationDuplicate(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	h.Handle(ctx, "U1", "donation report $20.99 https://files/r.pdf")
	reply := h.Handle(ctx, "U1", "donation report $20.99 https://files/r.pdf")
	if reply != duplicateReply {
		t.Fatalf("ожидали ошибку дубликата: %q", reply)
	}
}

func TestHandleAdminGate(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	for _, text := range []string{
		"donation confirm abc",
		"donation change abc $5",
		"donation delete abc",
		"donation list",
		"donation rebuild",
		"donation admin U2 $5",
		"channellog print",
		"channellog clean 30",
	} {
		if reply := h.Handle(ctx, "UNOBODY", text); reply != adminOnlyReply {
			t.Fatalf("команда %q должна требовать прав администратора, получили %q", text, reply)
		}
	}
}

func TestHandleDonationConfirmUnknown(t *testing.T) {
	h, _ := newTestHandler(t)

	reply := h.Handle(context.Background(), "UADMIN", "donation confirm deadbeef")
	if reply != "Error: deadbeef is not in our donation database." {
		t.Fatalf("неожиданный ответ: %q", reply)
	}
}

func TestHandleDonationDeleteReplies(t *testing.T) {
	h, repo := newTestHandler(t)
	ctx := context.Background()

	h.Handle(ctx, "U1", "donation report $20.99 https://files/r.pdf")
	fp := donations.Fingerprint("U1", "$20.99", "https://files/r.pdf")

	reply := h.Handle(ctx, "UADMIN", "donation delete "+fp)
	if reply != "Removed pending donation "+fp {
		t.Fatalf("неожиданный ответ на delete: %q", reply)
	}
	if len(repo.buckets[domain.StatusPendingConfirmation]) != 0 {
		t.Fatalf("пожертвование должно быть удалено из корзины")
	}
}

func TestHandleDonationAdminStripsMention(t *testing.T) {
	h, repo := newTestHandler(t)
	ctx := context.Background()

	reply := h.Handle(ctx, "UADMIN", "donation admin <@U2|bob> $5 --make-public")
	if !strings.Contains(reply, "The donation of $5.00 has been reported") {
		t.Fatalf("неожиданный ответ на admin: %q", reply)
	}

	fp := donations.Fingerprint("U2", "$5", "")
	if _, ok := repo.buckets[domain.StatusPendingConfirmation][fp]; !ok {
		t.Fatalf("запись должна лежать под голым user ID, корзина: %v", repo.buckets[domain.StatusPendingConfirmation])
	}
}

func TestNormalizeUserID(t *testing.T) {
	cases := map[string]string{
		"<@U2|bob>": "U2",
		"<@U2>":     "U2",
		"U2":        "U2",
		"@bob":      "@bob",
	}
	for token, want := range cases {
		if got := normalizeUserID(token); got != want {
			t.Fatalf("normalizeUserID(%q) = %q, ожидали %q", token, got, want)
		}
	}
}

func TestHandleChannelLogPrintEmpty(t *testing.T) {
	h, _ := newTestHandler(t)

	if reply := h.Handle(context.Background(), "UADMIN", "channellog print"); reply != "No logs" {
		t.Fatalf("пустой журнал должен давать 'No logs', получили %q", reply)
	}
}

func TestHandleChannelLogClean(t *testing.T) {
	h, _ := newTestHandler(t)

	if reply := h.Handle(context.Background(), "UADMIN", "channellog clean 30"); reply != "Log cleanup complete" {
		t.Fatalf("неожиданный ответ на clean: %q", reply)
	}
	if reply := h.Handle(context.Background(), "UADMIN", "channellog clean x"); !strings.HasPrefix(reply, "Error:") {
		t.Fatalf("нечисловой аргумент должен давать ошибку: %q", reply)
	}
}

func TestHandleUsage(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, text := range []string{"", "what", "donation", "donation frobnicate", "channellog"} {
		reply := h.Handle(context.Background(), "UADMIN", text)
		if !strings.HasPrefix(reply, "Usage:") {
			t.Fatalf("команда %q должна возвращать подсказку, получили %q", text, reply)
		}
	}
}
