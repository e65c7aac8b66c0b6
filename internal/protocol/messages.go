package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	GuildID         string            `json:"guild_id,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	PlayerID        string         `json:"player_id"`
	GuildID         string         `json:"guild_id,omitempty"`
	ArchiveParams   ArchiveParams  `json:"archive_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type ArchiveParams struct {
	ArchiveID  string `json:"archive_id"`
	TickRateHz int    `json:"tick_rate_hz"`
	Tick       uint64 `json:"tick"`
}

type CatalogDigests struct {
	Relics           string `json:"relics"`
	Sites            string `json:"sites"`
	ResearchProjects string `json:"research_projects"`
	ArchivistRanks   string `json:"archivist_ranks"`
}
