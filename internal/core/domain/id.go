package domain

import (
	"github.com/google/uuid"
)

type UserID uuid.UUID
type ChannelID uuid.UUID

// CallID identifies one call attempt. Every signal of an attempt carries it.
type CallID uuid.UUID

func NewUserID() UserID {
	return UserID(uuid.New())
}

func NewChannelID() ChannelID {
	return ChannelID(uuid.New())
}

func NewCallID() CallID {
	return CallID(uuid.New())
}

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(id), nil
}

func ParseChannelID(s string) (ChannelID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ChannelID{}, err
	}
	return ChannelID(id), nil
}

func (id UserID) String() string {
	return uuid.UUID(id).String()
}

func (id UserID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id UserID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ChannelID) String() string {
	return uuid.UUID(id).String()
}

func (id ChannelID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id ChannelID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ChannelID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

func (id CallID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id CallID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *CallID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
