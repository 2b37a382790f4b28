package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/assistant-desk/internal/model/client"
)

const systemPrompt = `You are an AI Business Assistant specialized in scheduling appointments and managing client communications.
Your responsibilities include:
1. Scheduling and confirming appointments
2. Sending reminders and follow-ups
3. Answering questions about services
4. Providing business hours and availability
5. Being professional, friendly, and helpful

When scheduling appointments:
- Always confirm the date, time, and service type
- Check for conflicts with existing appointments
- Suggest alternative times if requested time is unavailable
- Send confirmation once appointment is booked

Keep responses concise and action-oriented.`

// BuildSystemPrompt 拼接基础提示词与客户信息
func BuildSystemPrompt(profile *client.Client) string {
	if profile == nil {
		return systemPrompt
	}

	info := map[string]any{
		"id":    profile.ID,
		"name":  profile.Name,
		"email": profile.Email,
	}
	if profile.LastAppointmentDate != nil {
		info["last_appointment_date"] = profile.LastAppointmentDate.Format("2006-01-02")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return systemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nClient Information: ")
	b.Write(raw)
	return b.String()
}

// FallbackReply is used when no chat model is configured or the model fails.
func FallbackReply(message string) string {
	return fmt.Sprintf("I received your message: '%s'. How can I help you schedule an appointment?", message)
}
