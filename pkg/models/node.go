package models

import (
	"time"
)

// NodeType identifies the kind of step a node represents.
type NodeType string

const (
	NodeTypeCall               NodeType = "call"
	NodeTypeMessage            NodeType = "message"
	NodeTypeMail               NodeType = "mail"
	NodeTypeAutomatedMail      NodeType = "automated_mail"
	NodeTypeReplyTo            NodeType = "reply_to"
	NodeTypeAutomatedReplyTo   NodeType = "automated_reply_to"
	NodeTypeLinkedinConnection NodeType = "linkedin_connection"
	NodeTypeLinkedinMessage    NodeType = "linkedin_message"
	NodeTypeLinkedinProfile    NodeType = "linkedin_profile"
	NodeTypeLinkedinInteract   NodeType = "linkedin_interact"
	NodeTypeWhatsapp           NodeType = "whatsapp"
	NodeTypeDataCheck          NodeType = "data_check"
	NodeTypeCadenceCustom      NodeType = "cadence_custom"
)

// Node is one step of a cadence. Nodes form a singly linked chain through NextNodeID.
type Node struct {
	ID            string         `json:"id"`
	CadenceID     string         `json:"cadence_id"                validate:"required"`
	Name          string         `json:"name"                      validate:"required,min=1"`
	Type          NodeType       `json:"type"                      validate:"required"`
	WaitTime      int            `json:"wait_time"                 validate:"min=0"` // Minutes after the previous node completes
	NextNodeID    *string        `json:"next_node_id,omitempty"`
	IsFirst       bool           `json:"is_first"`
	StepNumber    int            `json:"step_number"`
	IsUrgent      bool           `json:"is_urgent"`
	RepliedNodeID *string        `json:"replied_node_id,omitempty"` // Reply-to target for reply nodes
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Wait returns the node's wait time as a duration.
func (n *Node) Wait() time.Duration {
	return time.Duration(n.WaitTime) * time.Minute
}

// IsTerminal reports whether the node has no successor.
func (n *Node) IsTerminal() bool {
	return n.NextNodeID == nil
}

// IsMail reports whether the node sends or replies to an email.
func (n *Node) IsMail() bool {
	switch n.Type {
	case NodeTypeMail, NodeTypeAutomatedMail, NodeTypeReplyTo, NodeTypeAutomatedReplyTo:
		return true
	default:
		return false
	}
}

// IsReply reports whether the node replies to an earlier mail node.
func (n *Node) IsReply() bool {
	return n.Type == NodeTypeReplyTo || n.Type == NodeTypeAutomatedReplyTo
}

// IsAutomated reports whether the node is executed by the automation system.
func (n *Node) IsAutomated() bool {
	return n.Type == NodeTypeAutomatedMail || n.Type == NodeTypeAutomatedReplyTo
}
