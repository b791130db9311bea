package events

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatRow = `{"id":%d,"ws_id":1,"type":"group","name":"general","members":%s,"created_at":"2024-05-01T10:00:00.123456+00:00"}`

func chatJSON(id int, members string) string {
	return fmt.Sprintf(chatRow, id, members)
}

func TestDecodeChatInsert(t *testing.T) {
	payload := `{"op":"INSERT","old":null,"new":` + chatJSON(7, "[2,3,4,5,6]") + `}`

	n, err := Decode(ChannelChatUpdated, []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, KindNewChat, n.Event.Kind())
	assert.ElementsMatch(t, []int64{2, 3, 4, 5, 6}, n.Recipients.IDs())
	chat, ok := n.Event.Chat()
	require.True(t, ok)
	assert.Equal(t, int64(7), chat.ID)
	require.NotNil(t, chat.Name)
	assert.Equal(t, "general", *chat.Name)
}

func TestDecodeChatUpdateMembershipChanged(t *testing.T) {
	payload := `{"op":"update","old":` + chatJSON(7, "[1,2,3]") + `,"new":` + chatJSON(7, "[2,3,4]") + `}`

	n, err := Decode(ChannelChatUpdated, []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, KindAddToChat, n.Event.Kind())
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, n.Recipients.IDs())
	chat, _ := n.Event.Chat()
	assert.Equal(t, []int64{2, 3, 4}, chat.Members)
}

func TestDecodeChatUpdateSameMembersHasNoRecipients(t *testing.T) {
	cases := map[string][2]string{
		"identical":  {"[1,2,3]", "[1,2,3]"},
		"reordered":  {"[1,2,3]", "[3,1,2]"},
		"duplicates": {"[1,2,2]", "[2,1]"},
	}
	for name, members := range cases {
		t.Run(name, func(t *testing.T) {
			payload := `{"op":"UPDATE","old":` + chatJSON(7, members[0]) + `,"new":` + chatJSON(7, members[1]) + `}`

			n, err := Decode(ChannelChatUpdated, []byte(payload))
			require.NoError(t, err)
			assert.Equal(t, KindAddToChat, n.Event.Kind())
			assert.Empty(t, n.Recipients)
		})
	}
}

func TestDecodeChatDelete(t *testing.T) {
	payload := `{"op":"DELETE","old":` + chatJSON(9, "[4,5]") + `,"new":null}`

	n, err := Decode(ChannelChatUpdated, []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, KindRemoveFromChat, n.Event.Kind())
	assert.ElementsMatch(t, []int64{4, 5}, n.Recipients.IDs())
	chat, _ := n.Event.Chat()
	assert.Equal(t, int64(9), chat.ID)
}

func TestDecodeMalformedChatPayload(t *testing.T) {
	cases := map[string]string{
		"invalid json":       `{"op":`,
		"insert without new": `{"op":"INSERT","old":null,"new":null}`,
		"update without new": `{"op":"UPDATE","old":` + chatJSON(1, "[1]") + `,"new":null}`,
		"update without old": `{"op":"UPDATE","old":null,"new":` + chatJSON(1, "[1]") + `}`,
		"delete without old": `{"op":"DELETE","old":null,"new":null}`,
		"unknown op":         `{"op":"TRUNCATE","old":null,"new":null}`,
		"wrong member type":  `{"op":"INSERT","old":null,"new":` + chatJSON(1, `["a"]`) + `}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(ChannelChatUpdated, []byte(payload))
			require.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDecodeMessageAdded(t *testing.T) {
	payload := `{"members":[1,2,2,3],"message":{"id":11,"chat_id":7,"sender_id":1,"content":"hello","files":["/files/1/a.png"],"created_at":"2024-05-01T10:00:00Z"}}`

	n, err := Decode(ChannelMessageAdded, []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, KindNewMessage, n.Event.Kind())
	assert.Len(t, n.Recipients, 3)
	assert.ElementsMatch(t, []int64{1, 2, 3}, n.Recipients.IDs())
	msg, ok := n.Event.Message()
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, []string{"/files/1/a.png"}, msg.Files)
}

func TestDecodeMessageAddedWithoutMessage(t *testing.T) {
	_, err := Decode(ChannelMessageAdded, []byte(`{"members":[1]}`))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeUnknownChannel(t *testing.T) {
	_, err := Decode("user_updated", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestEventJSON(t *testing.T) {
	payload := `{"op":"INSERT","old":null,"new":` + chatJSON(7, "[2,3]") + `}`
	n, err := Decode(ChannelChatUpdated, []byte(payload))
	require.NoError(t, err)

	raw, err := json.Marshal(n.Event)
	require.NoError(t, err)

	var got struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "NewChat", got.Type)
	assert.Equal(t, float64(7), got.Data["id"])
	assert.Equal(t, "group", got.Data["type"])
}
