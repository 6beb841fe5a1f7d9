package chanlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
)

type stubLogRepo struct {
	state  domain.ChannelLog
	onSave func()
}

func (r *stubLogRepo) Load(context.Context) (domain.ChannelLog, error) {
	if r.state == nil {
		return domain.ChannelLog{}, nil
	}
	return r.state, nil
}

func (r *stubLogRepo) Save(_ context.Context, log domain.ChannelLog) error {
	r.state = log
	if r.onSave != nil {
		r.onSave()
	}
	return nil
}

func (r *stubLogRepo) Lock(context.Context) (func(), error) {
	return func() {}, nil
}

type stubNotifier struct {
	sent   []string
	err    error
	onSend func()
}

func (n *stubNotifier) Send(_ context.Context, _ string, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	if n.onSend != nil {
		n.onSend()
	}
	return nil
}

func newTestService(repo *stubLogRepo, notifier *stubNotifier, monitorChannel string, now time.Time) *Service {
	svc := NewService(repo, notifier, monitorChannel, "", zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func strPtr(s string) *string { return &s }

func TestRecordAppendsToToday(t *testing.T) {
	repo := &stubLogRepo{}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &stubNotifier{}, "", now)

	if err := svc.Record(context.Background(), "#test", strPtr("@tester"), domain.ActionDelete, 12345); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.Record(context.Background(), "#test2", strPtr("@tester"), domain.ActionArchive, 78901); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	today := repo.state["2026-08-31"]
	if len(today) != 2 {
		t.Fatalf("ожидали 2 события в сегодняшней корзине, получили %d", len(today))
	}
}

func TestRecordForwardsRenderedText(t *testing.T) {
	repo := &stubLogRepo{}
	notifier := &stubNotifier{}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, notifier, "C012MON", now)

	if err := svc.Record(context.Background(), "#test", strPtr("@tester"), domain.ActionCreate, 12345); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("ожидали одну пересылку, получили %d", len(notifier.sent))
	}
	if notifier.sent[0] != "12345: @tester created #test." {
		t.Fatalf("неожиданный текст: %q", notifier.sent[0])
	}
}

func TestRecordSurvivesNotifierFailure(t *testing.T) {
	repo := &stubLogRepo{}
	notifier := &stubNotifier{err: errors.New("slack is down")}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, notifier, "C012MON", now)

	if err := svc.Record(context.Background(), "#test", strPtr("@tester"), domain.ActionCreate, 12345); err != nil {
		t.Fatalf("ошибка уведомления не должна ронять запись: %v", err)
	}
	if len(repo.state["2026-08-31"]) != 1 {
		t.Fatalf("событие должно быть записано несмотря на ошибку пересылки")
	}
}

func TestRenderFormat(t *testing.T) {
	repo := &stubLogRepo{}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &stubNotifier{}, "", now)

	if err := svc.Record(context.Background(), "#test", strPtr("@tester"), domain.ActionDelete, 12345); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.Record(context.Background(), "#test2", strPtr("@tester"), domain.ActionArchive, 78901); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	blocks, err := svc.Render(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("ожидали один блок на день, получили %d", len(blocks))
	}
	block := blocks[0]
	for _, want := range []string{"*2026-08-31*", "@tester", "deleted", "archived", "#test", "#test2", "12345", "78901"} {
		if !strings.Contains(block, want) {
			t.Fatalf("в блоке нет %q: %q", want, block)
		}
	}
}

func TestRenderEmptyLog(t *testing.T) {
	svc := newTestService(&stubLogRepo{}, &stubNotifier{}, "", time.Now())
	blocks, err := svc.Render(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("пустой журнал должен давать пустой вывод, получили %d блоков", len(blocks))
	}
}

func TestRenderOrdersDaysAscending(t *testing.T) {
	repo := &stubLogRepo{state: domain.ChannelLog{
		"2026-08-30": {domain.NewChannelEvent("#b", strPtr("@u"), domain.ActionCreate, 2)},
		"2026-08-01": {domain.NewChannelEvent("#a", strPtr("@u"), domain.ActionCreate, 1)},
	}}
	svc := newTestService(repo, &stubNotifier{}, "", time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))

	blocks, err := svc.Render(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("ожидали 2 блока, получили %d", len(blocks))
	}
	if !strings.HasPrefix(blocks[0], "*2026-08-01*") || !strings.HasPrefix(blocks[1], "*2026-08-30*") {
		t.Fatalf("дни должны идти по возрастанию: %q, %q", blocks[0], blocks[1])
	}
}

func TestPruneRemovesOldestByAgeAndEmptyBuckets(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := &stubLogRepo{state: domain.ChannelLog{
		"2026-01-01": {domain.NewChannelEvent("#old", strPtr("@u"), domain.ActionCreate, 1)},
		"2026-02-01": {domain.NewChannelEvent("#old2", strPtr("@u"), domain.ActionCreate, 2)},
		"2026-08-20": {},
		"2026-08-31": {},
	}}
	svc := newTestService(repo, &stubNotifier{}, "", now)

	if err := svc.Prune(context.Background(), 90); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if _, ok := repo.state["2026-01-01"]; ok {
		t.Fatalf("самая старая корзина должна быть удалена по возрасту")
	}
	if _, ok := repo.state["2026-02-01"]; !ok {
		t.Fatalf("по возрасту удаляется ровно одна корзина за вызов")
	}
	if _, ok := repo.state["2026-08-20"]; ok {
		t.Fatalf("пустая не-сегодняшняя корзина должна быть удалена")
	}
	if _, ok := repo.state["2026-08-31"]; !ok {
		t.Fatalf("сегодняшняя корзина не удаляется, даже пустая")
	}
}

func TestPruneZeroRetention(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := &stubLogRepo{state: domain.ChannelLog{
		"2026-08-30": {domain.NewChannelEvent("#a", strPtr("@u"), domain.ActionDelete, 1)},
		"2026-08-31": {},
	}}
	svc := newTestService(repo, &stubNotifier{}, "", now)

	if err := svc.Prune(context.Background(), 0); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := repo.state["2026-08-30"]; ok {
		t.Fatalf("при нулевом сроке хранения самая старая корзина удаляется")
	}
	if _, ok := repo.state["2026-08-31"]; !ok {
		t.Fatalf("сегодняшняя пустая корзина должна остаться")
	}
}

func TestCleanWarnsAdminsBeforePrune(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	var order []string
	repo := &stubLogRepo{
		state:  domain.ChannelLog{"2026-01-01": {domain.NewChannelEvent("#old", strPtr("@u"), domain.ActionCreate, 1)}},
		onSave: func() { order = append(order, "prune") },
	}
	notifier := &stubNotifier{onSend: func() { order = append(order, "warn") }}
	svc := NewService(repo, notifier, "", "C0ADMIN", zerolog.Nop())
	svc.now = func() time.Time { return now }

	if err := svc.Clean(context.Background(), "U0ADMIN", 30); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	want := "<@U0ADMIN> is clearing Channel Monitor logs for 30"
	if len(notifier.sent) != 1 || notifier.sent[0] != want {
		t.Fatalf("ожидали предупреждение %q, получили %v", want, notifier.sent)
	}
	if _, ok := repo.state["2026-01-01"]; ok {
		t.Fatalf("старая корзина должна быть удалена")
	}
	if len(order) != 2 || order[0] != "warn" || order[1] != "prune" {
		t.Fatalf("предупреждение должно уходить до чистки, порядок: %v", order)
	}
}

func TestCleanSurvivesWarningFailure(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := &stubLogRepo{state: domain.ChannelLog{
		"2026-01-01": {domain.NewChannelEvent("#old", strPtr("@u"), domain.ActionCreate, 1)},
	}}
	notifier := &stubNotifier{err: errors.New("slack is down")}
	svc := NewService(repo, notifier, "", "C0ADMIN", zerolog.Nop())
	svc.now = func() time.Time { return now }

	if err := svc.Clean(context.Background(), "U0ADMIN", 30); err != nil {
		t.Fatalf("ошибка предупреждения не должна отменять чистку: %v", err)
	}
	if _, ok := repo.state["2026-01-01"]; ok {
		t.Fatalf("чистка должна пройти несмотря на ошибку предупреждения")
	}
}

func TestEnsureTodayOnEmptyLog(t *testing.T) {
	repo := &stubLogRepo{}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &stubNotifier{}, "", now)

	if err := svc.EnsureToday(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := repo.state["2026-08-31"]; !ok {
		t.Fatalf("ожидали корзину на сегодня")
	}
}
