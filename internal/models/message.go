package models

import "time"

// Content is the outbound payload accepted by the transport send primitive.
// Media attachments are delivered by link; a Content may carry text, a
// media URL, or both (text first).
type Content struct {
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// Message is one inbound message event delivered by the transport.
type Message struct {
	TenantID int64     `json:"tenant_id"`
	From     string    `json:"from"`
	Text     string    `json:"text"`
	IsGroup  bool      `json:"is_group"` // group/broadcast sender, never an individual customer
	Time     time.Time `json:"time"`
}

// LifecycleEventType identifies a transport lifecycle event.
type LifecycleEventType string

const (
	// LifecycleLoginCode indicates a scannable login code was issued.
	LifecycleLoginCode LifecycleEventType = "login_code"
	// LifecycleAuthenticated indicates the pairing completed.
	LifecycleAuthenticated LifecycleEventType = "authenticated"
	// LifecycleOperational indicates the session is connected; Address carries
	// the resolved outbound contact address.
	LifecycleOperational LifecycleEventType = "operational"
	// LifecycleDisconnected indicates the session went offline.
	LifecycleDisconnected LifecycleEventType = "disconnected"
)

// LifecycleEvent is one transport lifecycle transition for a tenant session.
type LifecycleEvent struct {
	TenantID int64              `json:"tenant_id"`
	Type     LifecycleEventType `json:"type"`
	Code     string             `json:"code,omitempty"`     // login code payload
	Address  string             `json:"address,omitempty"`  // resolved contact address
	Identity string             `json:"identity,omitempty"` // transport credential key, set once paired
	Reason   string             `json:"reason,omitempty"`   // disconnect reason
	Time     time.Time          `json:"time"`
}
