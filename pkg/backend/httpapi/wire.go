package httpapi

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/user/chatpane/internal/types"
)

type chatEntry struct {
	ChatID   flexString `json:"chat_id"`
	ChatName string     `json:"chat_name"`
}

type listChatsResponse struct {
	Message []chatEntry `json:"message"`
}

type historyEntry struct {
	MessageID flexString `json:"messageID"`
	AU        string     `json:"A_U"`
	Content   string     `json:"content"`
}

type historyResponse struct {
	Message []historyEntry `json:"message"`
}

type sendPromptRequest struct {
	Query       string `json:"query"`
	ChatID      string `json:"chatID,omitempty"`
	NewChat     bool   `json:"newChat"`
	NewChatName string `json:"newChatName,omitempty"`
}

type sendPromptResponse struct {
	Message string     `json:"message"`
	ChatID  flexString `json:"chatId"`
}

type renameRequest struct {
	ChatName string `json:"chat_name"`
}

type renameResponse struct {
	Message chatEntry `json:"message"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

// flexString accepts ids encoded either as JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// senderFromAU maps the backend's A_U authorship marker.
func senderFromAU(au string) types.Sender {
	switch strings.ToLower(strings.TrimSpace(au)) {
	case "u", "user", "human":
		return types.SenderUser
	default:
		return types.SenderAI
	}
}

// sortByMessageID orders history ascending by message id, numerically when
// both ids are integers. The sort is stable so equal ids keep server order.
func sortByMessageID(entries []historyEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := string(entries[i].MessageID), string(entries[j].MessageID)
		ai, aErr := strconv.ParseInt(a, 10, 64)
		bi, bErr := strconv.ParseInt(b, 10, 64)
		if aErr == nil && bErr == nil {
			return ai < bi
		}
		return a < b
	})
}
