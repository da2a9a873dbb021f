package chathistory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Group chat timestamps render in UTC+8, matching the audience's clock.
var beijing = time.FixedZone("UTC+8", 8*60*60)

var whitespaceRun = regexp.MustCompile(`\s+`)

// FormatMessage renders one raw message as a single readable line:
// "[角色]昵称(ID) [2025-09-16 15:12]: 内容". Messages sent by selfID are
// tagged as the assistant, everything else as a group member.
func FormatMessage(msg Message, selfID int64) string {
	role := "[群友]"
	if selfID != 0 && msg.Sender.UserID == selfID {
		role = "[助理]"
	}

	nickname := msg.Sender.Nickname
	if nickname == "" {
		nickname = "未知用户"
	}

	timeStr := ""
	if msg.Time > 0 {
		timeStr = time.Unix(msg.Time, 0).In(beijing).Format(" [2006-01-02 15:04]")
	}

	return fmt.Sprintf("%s%s(%d)%s: %s", role, nickname, msg.Sender.UserID, timeStr, RenderContent(msg))
}

// RenderContent flattens a message's segments into plain text. Non-text
// segments become bracketed placeholders so the reader still sees what kind
// of content was there.
func RenderContent(msg Message) string {
	var parts []string
	for _, segment := range msg.Segments {
		switch segment.Type {
		case "text":
			text := strings.TrimSpace(whitespaceRun.ReplaceAllString(segment.Data.Text, " "))
			if text != "" {
				parts = append(parts, text)
			}
		case "image":
			parts = append(parts, "[图片]")
		case "face":
			id := segment.Data.ID
			if id == "" {
				id = "?"
			}
			parts = append(parts, fmt.Sprintf("[表情:%s]", id))
		case "at":
			if segment.Data.QQ == "all" {
				parts = append(parts, "[@全体成员]")
			} else {
				target := segment.Data.QQ
				if target == "" {
					target = "?"
				}
				parts = append(parts, fmt.Sprintf("[@%s]", target))
			}
		case "record":
			parts = append(parts, "[语音]")
		case "video":
			parts = append(parts, "[视频]")
		case "reply":
			parts = append(parts, "[回复]")
		case "forward":
			parts = append(parts, "[转发消息]")
		case "":
			parts = append(parts, "[未知类型]")
		default:
			parts = append(parts, fmt.Sprintf("[%s]", segment.Type))
		}
	}
	return strings.Join(parts, "")
}
