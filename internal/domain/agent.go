package domain

// AgentMetadata is the static self-description an agent registers with an
// inventory system.
type AgentMetadata struct {
	Name               string   `json:"name"`
	Version            string   `json:"version"`
	SupportedEquipment []string `json:"supported_equipment"`
	Capabilities       []string `json:"capabilities"`
}
