package events

import (
	"context"

	"github.com/KhrulSergey/league-core/models"
)

// Notifier — контракт нотификационного коллаборатора: fire-and-forget,
// at-most-once. Ошибка отправки никогда не откатывает уже сохранённое
// изменение состояния — вызывающий логирует её и идёт дальше.
type Notifier interface {
	SendEvent(ctx context.Context, event models.StatusChangeEvent) error
}

// HubNotifier транслирует события смены статуса в websocket-комнаты турниров.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) SendEvent(ctx context.Context, event models.StatusChangeEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	n.hub.BroadcastToRoom(event.TournamentID, event)
	return nil
}
