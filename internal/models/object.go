package models

import "time"

// AnonymousOwner is recorded as the owner email when the creator gave none.
const AnonymousOwner = "anonymous"

type ObjectType string

const (
	TypeString  ObjectType = "string"
	TypeBoolean ObjectType = "boolean"
	TypeToggle  ObjectType = "toggle"
)

func (t ObjectType) Valid() bool {
	switch t {
	case TypeString, TypeBoolean, TypeToggle:
		return true
	}
	return false
}

// IsBoolean reports whether content of this type is a boolean.
func (t ObjectType) IsBoolean() bool {
	return t == TypeBoolean || t == TypeToggle
}

type Object struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Type          ObjectType `json:"type"`
	Content       string     `json:"content"` // encrypted at rest
	Token         string     `json:"token"`
	TTL           int64      `json:"ttl"` // epoch ms
	CreatedAt     int64      `json:"createdAt"`
	HitCount      int        `json:"hitCount"`
	LastHit       *int64     `json:"lastHit,omitempty"`
	OwnerEmail    string     `json:"ownerEmail"`
	OwnerName     string     `json:"ownerName"`
	OneTimeAccess bool       `json:"oneTimeAccess"`
	TOTPSecret    string     `json:"totpSecret,omitempty"`
}

func (o *Object) ExpiresAt() time.Time {
	return time.UnixMilli(o.TTL)
}

// Expired reports whether the object is dead at now. An object whose ttl
// equals now is already expired.
func (o *Object) Expired(now time.Time) bool {
	return o.TTL <= now.UnixMilli()
}

func (o *Object) MFAEnabled() bool {
	return o.TOTPSecret != ""
}

// RecordHit bumps the hit counter and stamps the last hit.
func (o *Object) RecordHit(now time.Time) {
	ms := now.UnixMilli()
	o.HitCount++
	o.LastHit = &ms
}

func (o *Object) Clone() *Object {
	c := *o
	if o.LastHit != nil {
		ms := *o.LastHit
		c.LastHit = &ms
	}
	return &c
}
