package models

import "time"

// Conversation mirrors a remote session held by the video provider.
type Conversation struct {
	ConversationID  string    `json:"conversation_id"`
	ConversationURL string    `json:"conversation_url"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	InterviewID     string    `json:"interview_id,omitempty"`
}

// SessionProperties are the optional knobs sent with a create-session call.
type SessionProperties struct {
	MaxCallDuration       int    `json:"max_call_duration,omitempty"`
	EnableRecording       bool   `json:"enable_recording"`
	EnableTranscription   bool   `json:"enable_transcription"`
	ApplyGreenscreen      bool   `json:"apply_greenscreen"`
	ConversationalContext string `json:"conversational_context,omitempty"`
	CustomGreeting        string `json:"custom_greeting,omitempty"`
}

// SessionConfig is built per call and never reused across sessions.
type SessionConfig struct {
	ReplicaID        string            `json:"replica_id"`
	PersonaID        string            `json:"persona_id"`
	ConversationName string            `json:"conversation_name"`
	Properties       SessionProperties `json:"properties"`
}
