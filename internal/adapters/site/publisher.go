package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
	"slack-steward/internal/infra/metrics"
)

// cmdTimeout — предел для одной команды git или gh.
const cmdTimeout = 120 * time.Second

var (
	// ErrGit — любая ошибка команды git.
	ErrGit = errors.New("git command failed")
	// ErrGithub — любая ошибка команды gh.
	ErrGithub = errors.New("gh command failed")
)

// defaultArticleTemplate рендерит пост с итогом и списком пожертвований.
const defaultArticleTemplate = `Title: Season of Giving
Date: {{ .Date }}
Category: community

Together we have raised *${{ printf "%.2f" .Total }}* this season.

| Donor | Amount |
|-------|--------|
{{- range .Donations }}
| {{ .User }} | ${{ printf "%.2f" .Amount }} |
{{- end }}
`

// articleRow — строка таблицы пожертвований в посте.
type articleRow struct {
	User   string
	Amount float64
}

// Publisher клонирует репозиторий сайта, перезаписывает пост с
// пожертвованиями и открывает PR через gh CLI.
type Publisher struct {
	gitURL      string
	articlePath string
	tmpl        *template.Template
	log         zerolog.Logger
	now         func() time.Time
}

var _ domain.SitePublisher = (*Publisher)(nil)

// NewPublisher создаёт публикатор. templatePath может быть пустым,
// тогда используется встроенный шаблон поста.
func NewPublisher(gitURL, articlePath, templatePath string, logger zerolog.Logger) (*Publisher, error) {
	text := defaultArticleTemplate
	if templatePath != "" {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("читаем шаблон поста: %w", err)
		}
		text = string(raw)
	}
	tmpl, err := template.New("article").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("разбираем шаблон поста: %w", err)
	}
	return &Publisher{
		gitURL:      gitURL,
		articlePath: articlePath,
		tmpl:        tmpl,
		log:         logger,
		now:         time.Now,
	}, nil
}

// Publish публикует пожертвования: клон, новая ветка, перезапись поста,
// коммит, push и PR. Возвращает URL созданного PR.
func (p *Publisher) Publish(ctx context.Context, donations map[string]domain.DonationRecord, total float64) (string, error) {
	dir, err := os.MkdirTemp("", "site-clone-*")
	if err != nil {
		return "", fmt.Errorf("создаём временный каталог: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.log.Warn().Err(err).Str("dir", dir).Msg("не удалось удалить временный клон")
		}
	}()

	if err := p.clone(ctx, dir); err != nil {
		return "", err
	}
	repoDir := filepath.Join(dir, "website")

	timestamp := p.now().Unix()
	branch := fmt.Sprintf("new-donations-%d", timestamp)
	if _, err := p.git(ctx, repoDir, "checkout", "-b", branch); err != nil {
		return "", err
	}

	article, err := p.renderArticle(donations, total)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(repoDir, p.articlePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("создаём каталог статьи: %w", err)
	}
	if err := os.WriteFile(fullPath, article, 0o644); err != nil {
		return "", fmt.Errorf("пишем статью: %w", err)
	}

	commitMsg := fmt.Sprintf("updating with new donations %d", timestamp)
	if _, err := p.git(ctx, repoDir, "commit", p.articlePath, "-m", commitMsg); err != nil {
		return "", err
	}
	if _, err := p.git(ctx, repoDir, "push", "origin", "HEAD"); err != nil {
		return "", err
	}

	prTitle := fmt.Sprintf("Donation Manager: New Donations %d", timestamp)
	out, err := p.gh(ctx, repoDir, "pr", "create", "--title", prTitle, "--body", "New donations")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// clone выполняет git clone с ретраями: сетевые сбои здесь обычное дело.
func (p *Publisher) clone(ctx context.Context, dir string) error {
	return retry.Do(
		func() error {
			_, err := p.git(ctx, dir, "clone", p.gitURL, "website")
			return err
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.log.Warn().Err(err).Uint("attempt", n).Msg("повторяем git clone")
		}),
	)
}

func (p *Publisher) renderArticle(donations map[string]domain.DonationRecord, total float64) ([]byte, error) {
	ids := make([]string, 0, len(donations))
	for id := range donations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]articleRow, 0, len(ids))
	for _, id := range ids {
		donation := donations[id]
		user := "private"
		if donation.User != nil {
			user = *donation.User
		}
		rows = append(rows, articleRow{User: user, Amount: donation.Amount})
	}

	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, struct {
		Date      string
		Total     float64
		Donations []articleRow
	}{
		Date:      p.now().UTC().Format("2006-01-02"),
		Total:     total,
		Donations: rows,
	})
	if err != nil {
		return nil, fmt.Errorf("рендерим статью: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Publisher) git(ctx context.Context, dir string, args ...string) (string, error) {
	return p.run(ctx, dir, "git", ErrGit, args...)
}

func (p *Publisher) gh(ctx context.Context, dir string, args ...string) (string, error) {
	return p.run(ctx, dir, "gh", ErrGithub, args...)
}

func (p *Publisher) run(ctx context.Context, dir, name string, kind error, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cmdTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ObserveNetworkRequest("site", name, args[0], start, err)
	if err != nil {
		p.log.Error().
			Str("cmd", name+" "+strings.Join(args, " ")).
			Str("stderr", stderr.String()).
			Err(err).
			Msg("команда завершилась с ошибкой")
		return "", fmt.Errorf("%w: %s %s: %v", kind, name, args[0], err)
	}
	return stdout.String(), nil
}
