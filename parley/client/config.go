package client

import (
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/session"
	"github.com/TheusHen/parley/parley/transport"
)

const DefaultMaxPollIterations = 16

type Config struct {
	Session session.Config
	// Name is the blob name in the store. Defaults to the hex user id.
	Name string
	// MaxPollIterations bounds the board reads of one Poll.
	MaxPollIterations int
	// AnnouncementPage is the bulletin page size used by SyncAnnouncements.
	AnnouncementPage int
}

func DefaultConfig() Config {
	return Config{
		Session:           session.DefaultConfig(),
		MaxPollIterations: DefaultMaxPollIterations,
		AnnouncementPage:  transport.MaxFetchAnnouncements,
	}
}

func (c Config) withDefaults(keys identity.UserKeys) Config {
	if c.Name == "" {
		c.Name = keys.ID().String()
	}
	if c.MaxPollIterations <= 0 {
		c.MaxPollIterations = DefaultMaxPollIterations
	}
	c.AnnouncementPage = transport.ClampLimit(c.AnnouncementPage)
	return c
}
