package kommo

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
)

// Kommo posts webhooks form-encoded with bracketed keys, e.g.
// message[add][0][text] or message[add][0][attachment][link].
var messageAddKeyRE = regexp.MustCompile(`^message\[add\]\[(\d+)\]\[([a-z_]+)\](?:\[([a-z_]+)\])?$`)

// ParseWebhookForm builds a WebhookBody from a form-encoded Kommo webhook.
func ParseWebhookForm(form url.Values) (*WebhookBody, error) {
	body := &WebhookBody{}
	if id, sub := form.Get("account[id]"), form.Get("account[subdomain]"); id != "" || sub != "" {
		body.Account = &struct {
			ID        string `json:"id"`
			Subdomain string `json:"subdomain"`
		}{ID: id, Subdomain: sub}
	}

	adds := map[int]*MessageAdd{}
	for key, values := range form {
		m := messageAddKeyRE.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx > 100 {
			return nil, fmt.Errorf("kommo: bad webhook key %q", key)
		}
		add, ok := adds[idx]
		if !ok {
			add = &MessageAdd{}
			adds[idx] = add
		}
		setMessageField(add, m[2], m[3], values[0])
	}
	if len(adds) == 0 {
		return body, nil
	}

	indexes := make([]int, 0, len(adds))
	for idx := range adds {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	body.Message = &struct {
		Add []MessageAdd `json:"add"`
	}{}
	for _, idx := range indexes {
		body.Message.Add = append(body.Message.Add, *adds[idx])
	}
	return body, nil
}

func setMessageField(add *MessageAdd, field, sub, value string) {
	if field == "attachment" {
		if sub == "" {
			return
		}
		if add.Attachment == nil {
			add.Attachment = &WebhookAttachment{}
		}
		switch sub {
		case "type":
			add.Attachment.Type = value
		case "link":
			add.Attachment.Link = value
		case "file_name":
			add.Attachment.FileName = value
		}
		return
	}
	if sub != "" {
		return
	}
	switch field {
	case "id":
		add.ID = value
	case "chat_id":
		add.ChatID = value
	case "talk_id":
		add.TalkID = value
	case "contact_id":
		add.ContactID = value
	case "text":
		v := value
		add.Text = &v
	case "text_original":
		v := value
		add.TextOriginal = &v
	case "element_id":
		add.ElementID = json.Number(value)
	case "entity_id":
		add.EntityID = json.Number(value)
	case "type":
		add.Type = value
	case "origin":
		add.Origin = value
	}
}
