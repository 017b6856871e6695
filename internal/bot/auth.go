package bot

import (
	"context"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Authorizer grants the assign capability to allow-listed managers and to
// administrators of the staff chat.
type Authorizer struct {
	api         *tgbotapi.BotAPI
	staffChatID int64
	managers    []int64
}

func NewAuthorizer(api *tgbotapi.BotAPI, staffChatID int64, managers []int64) *Authorizer {
	return &Authorizer{api: api, staffChatID: staffChatID, managers: managers}
}

func (a *Authorizer) IsManager(ctx context.Context, groupID, userID string) bool {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return false
	}
	for _, id := range a.managers {
		if id == uid {
			return true
		}
	}
	if a.staffChatID == 0 {
		return false
	}

	member, err := a.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: a.staffChatID,
			UserID: uid,
		},
	})
	if err != nil {
		log.Printf("[warn] chat member lookup for %d: %v", uid, err)
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}
