package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
	"slack-steward/internal/usecase/chanlog"
	"slack-steward/internal/usecase/donations"
)

const (
	amountFormatReply = "Error: Please include your amount as a $##.##. i.e. $20.99. You can also use whole numbers like $20"
	notPositiveReply  = "Error: Donation amount has to be a positive number."
	duplicateReply    = "Error: Donation is not unique. Did you already add this donation? If this is in error, reach out to the admins"
	adminOnlyReply    = "Error: This command is admin-only."
)

// Handler разбирает текст slash-команды и вызывает нужный сервис.
// Slack-типов здесь нет: шлюз передаёт уже распарсенные user и text.
type Handler struct {
	donations *donations.Service
	chanlog   *chanlog.Service
	admins    map[string]struct{}
	command   string
	log       zerolog.Logger
}

// NewHandler создаёт обработчик команд. adminIDs — список Slack user ID
// с правом на административные подкоманды.
func NewHandler(donationSvc *donations.Service, chanlogSvc *chanlog.Service, adminIDs []string, command string, logger zerolog.Logger) *Handler {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		donations: donationSvc,
		chanlog:   chanlogSvc,
		admins:    admins,
		command:   command,
		log:       logger,
	}
}

// Handle выполняет команду и возвращает текст ответа пользователю.
func (h *Handler) Handle(ctx context.Context, userID, text string) string {
	args := strings.Fields(text)
	if len(args) == 0 {
		return h.usage()
	}

	switch args[0] {
	case "donation":
		return h.handleDonation(ctx, userID, args[1:])
	case "channellog":
		return h.handleChannelLog(ctx, userID, args[1:])
	default:
		return h.usage()
	}
}

func (h *Handler) handleDonation(ctx context.Context, userID string, args []string) string {
	if len(args) == 0 {
		return h.usage()
	}

	switch args[0] {
	case "report":
		return h.donationReport(ctx, userID, args[1:])
	case "admin":
		if !h.isAdmin(userID) {
			return adminOnlyReply
		}
		return h.donationAdmin(ctx, args[1:])
	case "confirm":
		if !h.isAdmin(userID) {
			return adminOnlyReply
		}
		return h.donationConfirm(ctx, args[1:])
	case "change":
		if !h.isAdmin(userID) {
			return adminOnlyReply
		}
		return h.donationChange(ctx, args[1:])
	case "delete":
		if !h.isAdmin(userID) {
			return adminOnlyReply
		}
		return h.donationDelete(ctx, args[1:])
	case "list":
		if !h.isAdmin(userID) {
			return adminOnlyReply
		}
		return h.donationList(ctx)
	case "rebuild":
		if !h.isAdmin(userID) {
			return adminOnlyReply
		}
		return h.donationRebuild()
	default:
		return h.usage()
	}
}

// donationReport регистрирует пожертвование от самого пользователя.
// Синтаксис: donation report $20.99 <receipt-url> [--make-public].
func (h *Handler) donationReport(ctx context.Context, userID string, args []string) string {
	makePublic := popFlag(&args, "--make-public")
	if len(args) < 2 {
		return "Error: No Receipt.\nPlease include a link to a PDF receipt of your donation when reporting it, " +
			"for example `" + h.command + " donation report $20.99 https://files.example.com/receipt.pdf`"
	}
	rawAmount, fileURL := args[0], args[1]

	if _, err := h.donations.Submit(ctx, userID, rawAmount, fileURL, makePublic); err != nil {
		return donationErrorReply(err)
	}

	amount, _ := donations.ParseAmount(rawAmount)
	reply := fmt.Sprintf("Your donation of $%.2f has been reported and is being reviewed.", amount)
	if !makePublic {
		reply += "\nSince you have elected for your donation to be private, we won't publicize your name."
	}
	return reply + "\nThank you so very much for your generosity!"
}

// donationAdmin регистрирует пожертвование за другого пользователя.
// Чек у администратора может отсутствовать.
func (h *Handler) donationAdmin(ctx context.Context, args []string) string {
	makePublic := popFlag(&args, "--make-public")
	if len(args) < 2 {
		return "Usage: " + h.command + " donation admin <user> $20.99 [receipt-url] [--make-public]"
	}
	user, rawAmount := normalizeUserID(args[0]), args[1]
	fileURL := ""
	if len(args) > 2 {
		fileURL = args[2]
	}

	if _, err := h.donations.Submit(ctx, user, rawAmount, fileURL, makePublic); err != nil {
		return donationErrorReply(err)
	}

	amount, _ := donations.ParseAmount(rawAmount)
	reply := fmt.Sprintf("The donation of $%.2f has been reported and is ready for review.", amount)
	if !makePublic {
		reply += "\nSince you have elected for this donation to be private, we won't publicize the username."
	}
	return reply
}

func (h *Handler) donationConfirm(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: " + h.command + " donation confirm <donation-id>"
	}
	if err := h.donations.Confirm(ctx, args[0]); err != nil {
		return donationNotFoundReply(args[0], err)
	}
	return fmt.Sprintf("Donation %s confirmed. Be on the look out for a PR updating the website", args[0])
}

func (h *Handler) donationChange(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: " + h.command + " donation change <donation-id> $20.99"
	}
	fp := args[0]
	if err := h.donations.Amend(ctx, fp, args[1]); err != nil {
		return donationNotFoundReply(fp, err)
	}
	return fmt.Sprintf("Donation %s has been updated. You can now confirm it with `%s donation confirm %s`", fp, h.command, fp)
}

func (h *Handler) donationDelete(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: " + h.command + " donation delete <donation-id>"
	}
	fp := args[0]
	status, err := h.donations.Delete(ctx, fp)
	if err != nil {
		return donationNotFoundReply(fp, err)
	}
	switch status {
	case domain.StatusPendingConfirmation:
		return fmt.Sprintf("Removed pending donation %s", fp)
	case domain.StatusPendingPublish:
		return fmt.Sprintf("Removed recorded donation %s", fp)
	default:
		return fmt.Sprintf("Removed pr'd donation %s. This won't remove the donation from the page until a PR "+
			"is redone with the new donations list. You can do this with `%s donation rebuild`", fp, h.command)
	}
}

func (h *Handler) donationList(ctx context.Context) string {
	sections, err := h.donations.List(ctx)
	if err != nil {
		return "Error: " + err.Error()
	}
	return strings.Join(sections, "\n")
}

// donationRebuild пересобирает список пожертвований на сайте.
// Публикация идёт в фоне: клон и PR занимают дольше, чем Slack ждёт ответ.
func (h *Handler) donationRebuild() string {
	go func() {
		if err := h.donations.PublishBatch(context.Background(), true); err != nil {
			h.log.Error().Err(err).Msg("пересборка списка пожертвований не удалась")
		}
	}()
	return "Rebuilding the donations list. Be on the look out for a PR updating the website"
}

func (h *Handler) handleChannelLog(ctx context.Context, userID string, args []string) string {
	if !h.isAdmin(userID) {
		return adminOnlyReply
	}
	if len(args) == 0 {
		return h.usage()
	}

	switch args[0] {
	case "print":
		blocks, err := h.chanlog.Render(ctx)
		if err != nil {
			return "Error: " + err.Error()
		}
		if len(blocks) == 0 {
			return "No logs"
		}
		return strings.Join(blocks, "\n")
	case "clean":
		if len(args) != 2 {
			return "Usage: " + h.command + " channellog clean <day-count>"
		}
		days, err := strconv.Atoi(args[1])
		if err != nil || days < 0 {
			return "Error: day count must be a non-negative integer."
		}
		if err := h.chanlog.Clean(ctx, userID, days); err != nil {
			return "Error: " + err.Error()
		}
		return "Log cleanup complete"
	default:
		return h.usage()
	}
}

func (h *Handler) isAdmin(userID string) bool {
	_, ok := h.admins[userID]
	return ok
}

func (h *Handler) usage() string {
	return "Usage: " + h.command + " donation report|admin|confirm|change|delete|list|rebuild, " +
		h.command + " channellog print|clean"
}

// normalizeUserID снимает Slack-обёртку упоминания: и «<@U123|name>»,
// и «<@U123>» сводятся к голому «U123». Голый ID проходит без изменений.
func normalizeUserID(token string) string {
	if !strings.HasPrefix(token, "<@") || !strings.HasSuffix(token, ">") {
		return token
	}
	id := token[2 : len(token)-1]
	if i := strings.IndexByte(id, '|'); i >= 0 {
		id = id[:i]
	}
	return id
}

func popFlag(args *[]string, flag string) bool {
	for i, arg := range *args {
		if arg == flag {
			*args = append((*args)[:i], (*args)[i+1:]...)
			return true
		}
	}
	return false
}

func donationErrorReply(err error) string {
	switch {
	case errors.Is(err, donations.ErrAmountFormat):
		return amountFormatReply
	case errors.Is(err, donations.ErrAmountNotPositive):
		return notPositiveReply
	case errors.Is(err, donations.ErrDuplicateDonation):
		return duplicateReply
	default:
		return "Error: " + err.Error()
	}
}

func donationNotFoundReply(fp string, err error) string {
	if errors.Is(err, donations.ErrNotFound) {
		return fmt.Sprintf("Error: %s is not in our donation database.", fp)
	}
	if errors.Is(err, donations.ErrAmountFormat) || errors.Is(err, donations.ErrAmountNotPositive) {
		return donationErrorReply(err)
	}
	return "Error: " + err.Error()
}
