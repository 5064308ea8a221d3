// Package rest exposes a transport.Transport over a small JSON/HTTP API and
// provides the matching client.
//
//	POST /v1/announcements         {"data": b64}              -> {"counter": n}
//	GET  /v1/announcements?since=&limit=                      -> {"announcements": [...]}
//	POST /v1/messages              {"seeker": hex, "ciphertext": b64}
//	POST /v1/messages/fetch        {"seekers": [hex...]}      -> {"messages": [...]}
//	GET  /healthz
//
// Non-2xx responses carry {"error": "..."}.
package rest

import (
	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
)

const (
	pathAnnouncements = "/v1/announcements"
	pathMessages      = "/v1/messages"
	pathFetchMessages = "/v1/messages/fetch"
	pathHealth        = "/healthz"

	headerRequestID = "X-Request-ID"
)

type announceRequest struct {
	Data []byte `json:"data"`
}

type announceResponse struct {
	Counter uint64 `json:"counter"`
}

type announcementsResponse struct {
	Announcements []transport.Announcement `json:"announcements"`
}

type fetchRequest struct {
	Seekers []seeker.Seeker `json:"seekers"`
}

type fetchResponse struct {
	Messages []transport.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}
