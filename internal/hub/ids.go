package hub

import (
	"time"

	"github.com/google/uuid"
)

// nowMillis - метка времени в миллисекундах, единая для всех событий узла.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// newID - устойчивый к коллизиям идентификатор с префиксом вида "msg_".
func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// Палитра цветов участников; цвет выбирается по порядку входа.
var participantColors = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#800000", "#aaffc3",
}

func colorForIndex(i int) string {
	return participantColors[i%len(participantColors)]
}
