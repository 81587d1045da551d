package models

import "slices"

// UnsubscribeTrigger tells which kind of mail node carried the unsubscribe.
type UnsubscribeTrigger string

const (
	UnsubscribeTriggerAutomatedMail     UnsubscribeTrigger = "automated_mail"
	UnsubscribeTriggerSemiAutomatedMail UnsubscribeTrigger = "semi_automated_mail"
)

const (
	DefaultMaxTasks            = 100
	DefaultHighPrioritySplit   = 50
	DefaultLeadCadenceOrderMax = 1000
)

// Settings holds the per-user engine configuration.
type Settings struct {
	UserID              string                            `json:"user_id"`
	SubDepartmentID     string                            `json:"sd_id"`
	CompanyID           string                            `json:"company_id"`
	MaxTasks            int                               `json:"max_tasks"              validate:"min=0"`
	HighPrioritySplit   int                               `json:"high_priority_split"    validate:"min=0,max=100"` // Percent of MaxTasks
	LeadCadenceOrderMax int                               `json:"lead_cadence_order_max" validate:"min=1"`
	UnsubscribeSkip     map[UnsubscribeTrigger][]NodeType `json:"unsubscribe_skip"`
	SkipWeekends        bool                              `json:"skip_weekends"` // Push task start times off Saturday and Sunday
}

// DefaultSettings returns the settings applied to users without overrides.
func DefaultSettings() Settings {
	return Settings{
		MaxTasks:            DefaultMaxTasks,
		HighPrioritySplit:   DefaultHighPrioritySplit,
		LeadCadenceOrderMax: DefaultLeadCadenceOrderMax,
		UnsubscribeSkip: map[UnsubscribeTrigger][]NodeType{
			UnsubscribeTriggerAutomatedMail:     {NodeTypeAutomatedMail, NodeTypeAutomatedReplyTo},
			UnsubscribeTriggerSemiAutomatedMail: {NodeTypeMail, NodeTypeReplyTo, NodeTypeAutomatedMail, NodeTypeAutomatedReplyTo},
		},
	}
}

// ReservedHighPriority is the number of daily slots reserved for high priority tasks.
func (s Settings) ReservedHighPriority() int {
	if s.MaxTasks <= 0 || s.HighPrioritySplit <= 0 {
		return 0
	}

	return s.MaxTasks * min(s.HighPrioritySplit, 100) / 100
}

// ShouldSkipOnUnsubscribe reports whether an outstanding task of nodeType is
// skipped when the unsubscribe came through a mail node of the given trigger kind.
// An empty trigger applies the union of every policy.
func (s Settings) ShouldSkipOnUnsubscribe(trigger UnsubscribeTrigger, nodeType NodeType) bool {
	if trigger == "" {
		for _, types := range s.UnsubscribeSkip {
			if slices.Contains(types, nodeType) {
				return true
			}
		}

		return false
	}

	return slices.Contains(s.UnsubscribeSkip[trigger], nodeType)
}

// UnsubscribeTriggerFor maps the node that carried an unsubscribe to its policy key.
func UnsubscribeTriggerFor(nodeType NodeType) (UnsubscribeTrigger, bool) {
	switch nodeType {
	case NodeTypeAutomatedMail, NodeTypeAutomatedReplyTo:
		return UnsubscribeTriggerAutomatedMail, true
	case NodeTypeMail, NodeTypeReplyTo:
		return UnsubscribeTriggerSemiAutomatedMail, true
	default:
		return "", false
	}
}
