package models

// JSONSchema is the object schema a node's data payload is validated against.
// It is served as-is by the node types endpoint.
type JSONSchema struct {
	Type        string               `json:"type"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	MinLength   *int      `json:"minLength,omitempty"`
	MaxLength   *int      `json:"maxLength,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// NodeTypeDefinition describes a node type: how it appears to users and what
// its payload must look like. Automated types are executed by the automation
// system instead of a salesperson.
type NodeTypeDefinition struct {
	Type        NodeType    `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Automated   bool        `json:"automated"`
	Schema      *JSONSchema `json:"schema"`
}
