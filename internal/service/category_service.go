package service

import "daily-tracker/internal/model"

var categoryLabels = map[model.Category]string{
	model.CategoryDaily:    "Ежедневные",
	model.CategoryNote:     "Заметки",
	model.CategoryWaitlist: "Вейтлисты",
	model.CategoryTestnet:  "Тестнеты",
}

var categoryIcons = map[model.Category]string{
	model.CategoryDaily:    "🔁",
	model.CategoryNote:     "📝",
	model.CategoryWaitlist: "⏳",
	model.CategoryTestnet:  "🧪",
}

var statusLabels = map[model.Status]string{
	model.StatusEarly:   "ранний",
	model.StatusOngoing: "идёт",
	model.StatusEnded:   "завершён",
}

// CategoryLabel returns the display name of a category.
func CategoryLabel(c model.Category) string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

func CategoryIcon(c model.Category) string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	return "•"
}

func StatusLabel(s model.Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}
