package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrMissingTemplate возвращается, когда в файле шаблонов нет
// обязательного текста архивации. Это фатальная ошибка конфигурации.
var ErrMissingTemplate = errors.New("в файле шаблонов нет текста archive")

// Templates — тексты уведомлений, отправляемых в канал перед архивацией.
type Templates struct {
	DryRun  string `json:"dry_run"`
	Archive string `json:"archive"`
}

// LoadTemplates читает шаблоны из JSON-файла. Текст archive обязателен;
// если dry_run не задан, используется текст archive.
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, fmt.Errorf("чтение файла шаблонов: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates разбирает JSON с ключами dry_run и archive.
func ParseTemplates(data []byte) (Templates, error) {
	var tpl Templates
	if err := json.Unmarshal(data, &tpl); err != nil {
		return Templates{}, fmt.Errorf("разбор файла шаблонов: %w", err)
	}
	if tpl.Archive == "" {
		return Templates{}, ErrMissingTemplate
	}
	if tpl.DryRun == "" {
		tpl.DryRun = tpl.Archive
	}
	return tpl, nil
}

// Text возвращает текст для выбранного режима.
func (t Templates) Text(dryRun bool) string {
	if dryRun {
		return t.DryRun
	}
	return t.Archive
}
