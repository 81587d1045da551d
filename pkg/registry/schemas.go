package registry

import (
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
)

// NewDefaultRegistry returns a registry with every built-in node type.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	r := NewRegistry(log)
	RegisterDefaultNodeTypes(r)

	return r
}

func RegisterDefaultNodeTypes(r *Registry) {
	for _, definition := range defaultDefinitions() {
		r.Register(definition)
	}
}

func intPtr(v int) *int { return &v }

func text(description string) *models.Property {
	return &models.Property{Type: "string", Description: description}
}

func requiredText(description string) *models.Property {
	return &models.Property{Type: "string", Description: description, MinLength: intPtr(1)}
}

func defaultDefinitions() []*models.NodeTypeDefinition {
	mail := &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"subject":     requiredText("Mail subject"),
			"body":        requiredText("Mail body template"),
			"template_id": text("Template used to render the mail"),
			"attachments": {Type: "array", Items: text("Attachment identifier")},
		},
		Required: []string{"subject", "body"},
	}

	reply := &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"subject": text("Overrides the replied subject"),
			"body":    requiredText("Reply body template"),
		},
		Required: []string{"body"},
	}

	message := func(title string) *models.JSONSchema {
		return &models.JSONSchema{
			Type:       "object",
			Title:      title,
			Properties: map[string]*models.Property{"message": requiredText("Message body")},
			Required:   []string{"message"},
		}
	}

	free := func(title string) *models.JSONSchema {
		return &models.JSONSchema{
			Type:       "object",
			Title:      title,
			Properties: map[string]*models.Property{"instructions": text("Notes for the salesperson")},
		}
	}

	return []*models.NodeTypeDefinition{
		{Type: models.NodeTypeCall, Name: "Call", Description: "Phone call task", Schema: &models.JSONSchema{
			Type:       "object",
			Properties: map[string]*models.Property{"script": text("Call script")},
		}},
		{Type: models.NodeTypeMessage, Name: "SMS", Description: "Text message task", Schema: message("SMS")},
		{Type: models.NodeTypeMail, Name: "Semi-automated mail", Description: "Mail reviewed and sent by the salesperson", Schema: mail},
		{Type: models.NodeTypeAutomatedMail, Name: "Automated mail", Description: "Mail sent by the automation system", Automated: true, Schema: mail},
		{Type: models.NodeTypeReplyTo, Name: "Semi-automated reply", Description: "Reply in the thread of an earlier mail", Schema: reply},
		{Type: models.NodeTypeAutomatedReplyTo, Name: "Automated reply", Description: "Automated reply in the thread of an earlier mail", Automated: true, Schema: reply},
		{Type: models.NodeTypeLinkedinConnection, Name: "LinkedIn connection", Description: "Send a connection request", Schema: &models.JSONSchema{
			Type:       "object",
			Properties: map[string]*models.Property{"message": {Type: "string", Description: "Connection note", MaxLength: intPtr(300)}},
		}},
		{Type: models.NodeTypeLinkedinMessage, Name: "LinkedIn message", Description: "Send a LinkedIn message", Schema: message("LinkedIn message")},
		{Type: models.NodeTypeLinkedinProfile, Name: "LinkedIn profile view", Description: "View the lead's profile", Schema: free("LinkedIn profile view")},
		{Type: models.NodeTypeLinkedinInteract, Name: "LinkedIn interaction", Description: "Interact with the lead's posts", Schema: free("LinkedIn interaction")},
		{Type: models.NodeTypeWhatsapp, Name: "WhatsApp", Description: "Send a WhatsApp message", Schema: message("WhatsApp")},
		{Type: models.NodeTypeDataCheck, Name: "Data check", Description: "Verify the lead's data", Schema: free("Data check")},
		{Type: models.NodeTypeCadenceCustom, Name: "Custom task", Description: "Free-form task", Schema: free("Custom task")},
	}
}
