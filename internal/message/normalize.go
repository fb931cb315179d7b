package message

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"wavebot/internal/transport"
)

const statusBroadcast = "status@broadcast"

var mediaKinds = map[string]string{
	"imageMessage":    "image",
	"videoMessage":    "video",
	"audioMessage":    "audio",
	"documentMessage": "document",
	"stickerMessage":  "sticker",
}

// contextKeys carry metadata, not content; the text scan skips them.
var contextKeys = map[string]bool{
	"contextInfo":        true,
	"messageContextInfo": true,
}

// CanonicalJID strips the device suffix from a transport identifier, so
// "123:45@host" and "123@host" compare equal.
func CanonicalJID(jid string) string {
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return jid
	}
	user := jid[:at]
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}
	return user + jid[at:]
}

// Normalize converts a raw message event into the canonical view. A nil
// result means the event carries nothing to process: no inner message, the
// status broadcast channel, or an ephemeral wrapper with no resolvable
// payload (the wrapper is unwrapped once before giving up).
func Normalize(raw []byte, selfID string) *Normalized {
	root := gjson.ParseBytes(raw)

	chatID := root.Get("key.remoteJid").String()
	if chatID == "" || chatID == statusBroadcast {
		return nil
	}

	msg := root.Get("message")
	if !msg.Exists() || !msg.IsObject() {
		return nil
	}
	if firstKey(msg) == "ephemeralMessage" {
		msg = msg.Get("ephemeralMessage.message")
		if !msg.Exists() || !msg.IsObject() {
			return nil
		}
	}

	contentKind := firstKey(msg)
	if contentKind == "" {
		return nil
	}

	fromMe := root.Get("key.fromMe").Bool()
	sender := chatID
	if fromMe {
		sender = CanonicalJID(selfID)
	} else if p := root.Get("key.participant").String(); p != "" {
		sender = CanonicalJID(p)
	} else {
		sender = CanonicalJID(chatID)
	}

	kind := ChatPrivate
	switch {
	case strings.HasSuffix(chatID, "@g.us"):
		kind = ChatGroup
	case strings.HasSuffix(chatID, "@newsletter"):
		kind = ChatChannel
	}

	n := &Normalized{
		Key: transport.MessageKey{
			ChatID:      chatID,
			ID:          root.Get("key.id").String(),
			FromMe:      fromMe,
			Participant: root.Get("key.participant").String(),
		},
		ChatID:      chatID,
		SenderID:    sender,
		PushName:    root.Get("pushName").String(),
		FromSelf:    fromMe,
		Kind:        kind,
		ContentKind: contentKind,
		Body:        extractText(msg),
	}

	if ts := root.Get("messageTimestamp").Int(); ts > 0 {
		n.Timestamp = time.Unix(ts, 0)
	} else {
		n.Timestamp = time.Now()
	}

	content := msg.Get(contentKind)

	if kind, ok := mediaKinds[contentKind]; ok {
		n.Attachment = Attachment{Present: true, Kind: kind}
	} else if quoted := content.Get("contextInfo.quotedMessage"); quoted.Exists() {
		if kind, ok := mediaKinds[firstKey(quoted)]; ok {
			n.Attachment = Attachment{Present: true, Kind: kind, Quoted: true}
		}
	}

	// Reaction and quote linkage are computed independently of text
	// extraction; a bare reaction has no body but still dispatches.
	if contentKind == "reactionMessage" {
		n.Reaction = &Reaction{
			Emoji:           msg.Get("reactionMessage.text").String(),
			TargetMessageID: msg.Get("reactionMessage.key.id").String(),
		}
	} else if r := content.Get("contextInfo.reactionMessage"); r.Exists() {
		n.Reaction = &Reaction{
			Emoji:           r.Get("text").String(),
			TargetMessageID: r.Get("key.id").String(),
		}
	}

	if ctx := content.Get("contextInfo"); ctx.Exists() {
		if stanza := ctx.Get("stanzaId").String(); stanza != "" {
			n.Quote = &Quote{
				MessageID: stanza,
				SenderID:  CanonicalJID(ctx.Get("participant").String()),
				Text:      extractText(ctx.Get("quotedMessage")),
			}
		}
	}

	return n
}

// extractText pulls the canonical body: direct text, then a media caption,
// then the first nested object exposing a text/caption field in arrival
// order, skipping context keys. Empty when nothing matches.
func extractText(msg gjson.Result) string {
	if !msg.Exists() || !msg.IsObject() {
		return ""
	}
	if s := msg.Get("conversation").String(); s != "" {
		return s
	}
	if s := msg.Get("extendedTextMessage.text").String(); s != "" {
		return s
	}
	for _, k := range []string{"imageMessage", "videoMessage", "documentMessage"} {
		if s := msg.Get(k + ".caption").String(); s != "" {
			return s
		}
	}

	var found string
	msg.ForEach(func(key, value gjson.Result) bool {
		if contextKeys[key.String()] || !value.IsObject() {
			return true
		}
		if s := value.Get("text").String(); s != "" {
			found = s
			return false
		}
		if s := value.Get("caption").String(); s != "" {
			found = s
			return false
		}
		return true
	})
	return found
}

func firstKey(obj gjson.Result) string {
	var first string
	obj.ForEach(func(key, _ gjson.Result) bool {
		first = key.String()
		return false
	})
	return first
}
